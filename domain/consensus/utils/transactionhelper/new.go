package transactionhelper

import (
	"encoding/binary"

	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/pkg/errors"
)

// Coin is an output together with its opening, which is what is needed to
// spend it.
type Coin struct {
	Value uint64
	Blind secp.BlindingFactor
	model.OutputIdentifier
}

// Input returns an input spending the coin.
func (c *Coin) Input() *model.Input {
	return &model.Input{Commitment: c.Commitment}
}

func deriveBlind(seed []byte, label string, index int) secp.BlindingFactor {
	data := make([]byte, 0, len(seed)+len(label)+4)
	data = append(data, seed...)
	data = append(data, label...)
	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], uint32(index))
	data = append(data, indexBytes[:]...)
	return secp.BlindingFactorFromSeed(data)
}

// NewOutput creates an output committing to value with the given blinding
// factor, along with the coin that spends it.
func NewOutput(value uint64, features model.OutputFeatures, blind secp.BlindingFactor) (*model.Output, *Coin, error) {
	commitment, err := secp.Commit(value, &blind)
	if err != nil {
		return nil, nil, err
	}
	proof, err := secp.ProveRange(value, &blind)
	if err != nil {
		return nil, nil, err
	}
	identifier := model.OutputIdentifier{Features: features, Commitment: commitment}
	output := &model.Output{OutputIdentifier: identifier, Proof: proof}
	return output, &Coin{Value: value, Blind: blind, OutputIdentifier: identifier}, nil
}

func newKernel(features model.KernelFeatures, excessBlind *secp.BlindingFactor) (*model.TxKernel, error) {
	excess, err := secp.PublicKeyCommitment(excessBlind)
	if err != nil {
		return nil, err
	}
	kernel := &model.TxKernel{Features: features, Excess: excess}
	kernel.Signature, err = secp.Sign(kernel.Message()[:], excessBlind)
	if err != nil {
		return nil, err
	}
	return kernel, nil
}

// NewCoinbase creates a coinbase output of the given value and the kernel
// proving it. The kernel excess is the blinding factor of the output.
func NewCoinbase(value uint64, seed []byte) (*model.Output, *model.TxKernel, *Coin, error) {
	blind := deriveBlind(seed, "coinbase", 0)
	output, coin, err := NewOutput(value, model.OutputFeaturesCoinbase, blind)
	if err != nil {
		return nil, nil, nil, err
	}
	kernel, err := newKernel(model.CoinbaseFeatures(), &blind)
	if err != nil {
		return nil, nil, nil, err
	}
	return output, kernel, coin, nil
}

// NewTransaction creates a transaction spending inputs into outputs of the
// given values. The fee is taken from the kernel features and the values
// must balance: sum(inputs) = sum(outputs) + fee.
func NewTransaction(inputs []*Coin, outputValues []uint64, features model.KernelFeatures,
	seed []byte) (*model.Transaction, []*Coin, error) {

	excessBlind := deriveBlind(seed, "excess", 0)
	return NewTransactionWithExcess(inputs, outputValues, features, excessBlind, seed)
}

// NewTransactionWithExcess is like NewTransaction but uses the given
// blinding factor for the kernel excess. The kernel offset absorbs the
// difference.
func NewTransactionWithExcess(inputs []*Coin, outputValues []uint64, features model.KernelFeatures,
	excessBlind secp.BlindingFactor, seed []byte) (*model.Transaction, []*Coin, error) {

	var inputSum, outputSum uint64
	inputBlinds := make([]secp.BlindingFactor, len(inputs))
	body := model.TransactionBody{}
	for i, coin := range inputs {
		inputSum += coin.Value
		inputBlinds[i] = coin.Blind
		body.Inputs = append(body.Inputs, coin.Input())
	}

	outputBlinds := make([]secp.BlindingFactor, len(outputValues))
	coins := make([]*Coin, len(outputValues))
	for i, value := range outputValues {
		outputSum += value
		outputBlinds[i] = deriveBlind(seed, "output", i)
		output, coin, err := NewOutput(value, model.OutputFeaturesPlain, outputBlinds[i])
		if err != nil {
			return nil, nil, err
		}
		body.Outputs = append(body.Outputs, output)
		coins[i] = coin
	}
	if inputSum != outputSum+features.Fee {
		return nil, nil, errors.Errorf("inputs %d don't balance outputs %d plus fee %d",
			inputSum, outputSum, features.Fee)
	}

	offset, err := secp.BlindSum(outputBlinds, append(inputBlinds, excessBlind))
	if err != nil {
		return nil, nil, err
	}
	kernel, err := newKernel(features, &excessBlind)
	if err != nil {
		return nil, nil, err
	}
	body.Kernels = []*model.TxKernel{kernel}
	body.Sort()
	return &model.Transaction{Offset: offset, Body: body}, coins, nil
}

// Aggregate merges transactions into one, summing their offsets.
func Aggregate(transactions []*model.Transaction) (*model.Transaction, error) {
	offsets := make([]secp.BlindingFactor, len(transactions))
	aggregate := &model.Transaction{}
	for i, tx := range transactions {
		offsets[i] = tx.Offset
		aggregate.Body.Inputs = append(aggregate.Body.Inputs, tx.Body.Inputs...)
		aggregate.Body.Outputs = append(aggregate.Body.Outputs, tx.Body.Outputs...)
		aggregate.Body.Kernels = append(aggregate.Body.Kernels, tx.Body.Kernels...)
	}
	offset, err := secp.BlindSum(offsets, nil)
	if err != nil {
		return nil, err
	}
	aggregate.Offset = offset
	aggregate.Body.Sort()
	return aggregate, nil
}
