package model

import (
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
)

// VerifyKernelSignatures verifies the signature of every kernel against its
// excess.
func VerifyKernelSignatures(kernels []*TxKernel) error {
	for _, kernel := range kernels {
		err := secp.VerifySignature(kernel.Message()[:], &kernel.Signature, &kernel.Excess)
		if err != nil {
			return ruleerrors.Wrapf(ruleerrors.KindTransaction, err, "invalid kernel signature for excess %s",
				kernel.Excess)
		}
	}
	return nil
}

// VerifyRangeProofs verifies the range proof of every output.
func VerifyRangeProofs(outputs []*Output) error {
	for _, output := range outputs {
		err := secp.VerifyRangeProof(&output.Commitment, output.Proof)
		if err != nil {
			return ruleerrors.Wrapf(ruleerrors.KindTransaction, err, "invalid range proof for output %s",
				output.Commitment)
		}
	}
	return nil
}

// VerifyLockHeights checks that height locked kernels are past their lock
// height and that NRD kernels are allowed at the given height.
func VerifyLockHeights(height uint64, kernels []*TxKernel, nrdEnabled bool, nrdActivationHeight uint64) error {
	for _, kernel := range kernels {
		switch kernel.Features.Kind {
		case KernelHeightLocked:
			if kernel.Features.LockHeight > height {
				return ruleerrors.New(ruleerrors.KindTxLockHeight,
					"kernel %s is locked until height %d, block height is %d",
					kernel.Excess, kernel.Features.LockHeight, height)
			}
		case KernelNoRecentDuplicate:
			if !nrdEnabled || height < nrdActivationHeight {
				return ruleerrors.New(ruleerrors.KindTransaction,
					"NRD kernel not enabled at height %d", height)
			}
		}
	}
	return nil
}

// VerifyKernelSums checks the homomorphic balance of the body:
// sum(outputs) - sum(inputs) - overage*H = sum(excesses) + offset*G.
// A block's overage is the minted reward, a transaction's overage is its
// negated fee.
func (b *TransactionBody) VerifyKernelSums(overage int64, offset *secp.BlindingFactor) error {
	outputs := make([]secp.Commitment, len(b.Outputs))
	for i, output := range b.Outputs {
		outputs[i] = output.Commitment
	}
	inputs := make([]secp.Commitment, len(b.Inputs))
	for i, input := range b.Inputs {
		inputs[i] = input.Commitment
	}
	utxoSum, err := secp.CommitSum(outputs, inputs)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindCommitted, err, "invalid commitment")
	}
	switch {
	case overage > 0:
		utxoSum.SubValue(uint64(overage))
	case overage < 0:
		utxoSum.AddValue(uint64(-overage))
	}

	excesses := make([]secp.Commitment, len(b.Kernels))
	for i, kernel := range b.Kernels {
		excesses[i] = kernel.Excess
	}
	kernelSum, err := secp.CommitSum(excesses, nil)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindCommitted, err, "invalid kernel excess")
	}
	if !offset.IsZero() {
		err = kernelSum.AddBlind(offset)
		if err != nil {
			return ruleerrors.Wrap(ruleerrors.KindCommitted, err, "invalid kernel offset")
		}
	}

	if !utxoSum.Equal(kernelSum) {
		return ruleerrors.New(ruleerrors.KindCommitted, "kernel sum mismatch")
	}
	return nil
}

// VerifyCoinbase checks that the coinbase outputs mint exactly
// reward per coinbase output plus the fees of the body, and that the
// coinbase kernels account for the coinbase outputs.
func (b *TransactionBody) VerifyCoinbase(reward uint64) error {
	coinbaseOutputs := b.CoinbaseOutputs()
	coinbaseKernels := b.CoinbaseKernels()
	if len(coinbaseOutputs) == 0 || len(coinbaseKernels) == 0 {
		return ruleerrors.New(ruleerrors.KindBlock, "missing coinbase output or kernel")
	}

	outputs := make([]secp.Commitment, len(coinbaseOutputs))
	for i, output := range coinbaseOutputs {
		outputs[i] = output.Commitment
	}
	excesses := make([]secp.Commitment, len(coinbaseKernels))
	for i, kernel := range coinbaseKernels {
		excesses[i] = kernel.Excess
	}
	sum, err := secp.CommitSum(outputs, excesses)
	if err != nil {
		return ruleerrors.Wrap(ruleerrors.KindBlock, err, "invalid coinbase commitment")
	}
	expected := secp.NewPointSum()
	expected.AddValue(reward*uint64(len(coinbaseOutputs)) + b.Fee())
	if !sum.Equal(expected) {
		return ruleerrors.New(ruleerrors.KindBlock, "coinbase sum mismatch")
	}
	return nil
}

// VerifyCutThrough checks that no output is spent within the same body.
func (b *TransactionBody) VerifyCutThrough() error {
	created := make(map[secp.Commitment]struct{}, len(b.Outputs))
	for _, output := range b.Outputs {
		created[output.Commitment] = struct{}{}
	}
	for _, input := range b.Inputs {
		if _, ok := created[input.Commitment]; ok {
			return ruleerrors.New(ruleerrors.KindTransaction, "cut-through violation: %s is both spent and created",
				input.Commitment)
		}
	}
	return nil
}

// VerifySorted checks that the body is in canonical order.
func (b *TransactionBody) VerifySorted() error {
	if !b.IsSorted() {
		return ruleerrors.New(ruleerrors.KindTransaction, "body is not sorted")
	}
	return nil
}

// VerifyWeight checks that the body weight doesn't exceed maxWeight.
func (b *TransactionBody) VerifyWeight(maxWeight uint64) error {
	weight := b.Weight()
	if weight > maxWeight {
		return ruleerrors.New(ruleerrors.KindBlock, "body weight %d exceeds the maximum %d", weight, maxWeight)
	}
	return nil
}

// Validate runs the context free checks of a standalone transaction.
func (tx *Transaction) Validate(maxWeight uint64) error {
	if len(tx.Body.Kernels) == 0 {
		return ruleerrors.New(ruleerrors.KindTransaction, "transaction has no kernels")
	}
	for _, kernel := range tx.Body.Kernels {
		if kernel.IsCoinbase() {
			return ruleerrors.New(ruleerrors.KindTransaction, "transaction has a coinbase kernel")
		}
	}
	for _, output := range tx.Body.Outputs {
		if output.IsCoinbase() {
			return ruleerrors.New(ruleerrors.KindTransaction, "transaction has a coinbase output")
		}
	}
	err := tx.Body.VerifyWeight(maxWeight)
	if err != nil {
		return err
	}
	err = tx.Body.VerifySorted()
	if err != nil {
		return err
	}
	err = tx.Body.VerifyCutThrough()
	if err != nil {
		return err
	}
	err = VerifyRangeProofs(tx.Body.Outputs)
	if err != nil {
		return err
	}
	err = VerifyKernelSignatures(tx.Body.Kernels)
	if err != nil {
		return err
	}
	return tx.Body.VerifyKernelSums(-int64(tx.Body.Fee()), &tx.Offset)
}
