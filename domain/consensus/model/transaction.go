package model

import (
	"bytes"
	"io"
	"sort"

	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

// Weights of the body elements, used to bound the size of a block.
const (
	InputWeight  = 1
	OutputWeight = 21
	KernelWeight = 3
)

// maxBodyElements bounds the number of elements of each kind a decoded body
// may announce.
const maxBodyElements = 100000

// TransactionBody holds the inputs, outputs and kernels of a transaction
// or of a block. Each list is kept sorted: inputs and outputs by
// commitment, kernels by hash.
type TransactionBody struct {
	Inputs  []*Input
	Outputs []*Output
	Kernels []*TxKernel
}

// Weight returns the weight of the body.
func (b *TransactionBody) Weight() uint64 {
	return uint64(len(b.Inputs))*InputWeight + uint64(len(b.Outputs))*OutputWeight +
		uint64(len(b.Kernels))*KernelWeight
}

// Fee returns the sum of the kernel fees.
func (b *TransactionBody) Fee() uint64 {
	var fee uint64
	for _, kernel := range b.Kernels {
		fee += kernel.Features.Fee
	}
	return fee
}

// Sort sorts the inputs, outputs and kernels into their canonical order.
func (b *TransactionBody) Sort() {
	sort.Slice(b.Inputs, func(i, j int) bool {
		return compareCommitments(&b.Inputs[i].Commitment, &b.Inputs[j].Commitment) < 0
	})
	sort.Slice(b.Outputs, func(i, j int) bool {
		return compareCommitments(&b.Outputs[i].Commitment, &b.Outputs[j].Commitment) < 0
	})
	sort.Slice(b.Kernels, func(i, j int) bool {
		return hashes.Less(b.Kernels[i].Hash(), b.Kernels[j].Hash())
	})
}

// IsSorted returns whether every list is in canonical order, without
// duplicates.
func (b *TransactionBody) IsSorted() bool {
	for i := 1; i < len(b.Inputs); i++ {
		if compareCommitments(&b.Inputs[i-1].Commitment, &b.Inputs[i].Commitment) >= 0 {
			return false
		}
	}
	for i := 1; i < len(b.Outputs); i++ {
		if compareCommitments(&b.Outputs[i-1].Commitment, &b.Outputs[i].Commitment) >= 0 {
			return false
		}
	}
	for i := 1; i < len(b.Kernels); i++ {
		if !hashes.Less(b.Kernels[i-1].Hash(), b.Kernels[i].Hash()) {
			return false
		}
	}
	return true
}

// CoinbaseOutputs returns the outputs with coinbase features.
func (b *TransactionBody) CoinbaseOutputs() []*Output {
	var outputs []*Output
	for _, output := range b.Outputs {
		if output.IsCoinbase() {
			outputs = append(outputs, output)
		}
	}
	return outputs
}

// CoinbaseKernels returns the kernels with coinbase features.
func (b *TransactionBody) CoinbaseKernels() []*TxKernel {
	var kernels []*TxKernel
	for _, kernel := range b.Kernels {
		if kernel.IsCoinbase() {
			kernels = append(kernels, kernel)
		}
	}
	return kernels
}

// Serialize writes the three lists, each prefixed with its length.
func (b *TransactionBody) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	err := serialization.WriteVarInt(w, uint64(len(b.Inputs)))
	if err != nil {
		return err
	}
	for _, input := range b.Inputs {
		err = input.Serialize(w, version)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteVarInt(w, uint64(len(b.Outputs)))
	if err != nil {
		return err
	}
	for _, output := range b.Outputs {
		err = output.Serialize(w, version)
		if err != nil {
			return err
		}
	}
	err = serialization.WriteVarInt(w, uint64(len(b.Kernels)))
	if err != nil {
		return err
	}
	for _, kernel := range b.Kernels {
		err = kernel.Serialize(w, version)
		if err != nil {
			return err
		}
	}
	return nil
}

func readCount(r io.Reader, fieldName string) (int, error) {
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if count > maxBodyElements {
		return 0, errors.Wrapf(serialization.ErrMalformed, "too many %s: %d", fieldName, count)
	}
	return int(count), nil
}

// DeserializeTransactionBody reads a body written by Serialize.
func DeserializeTransactionBody(r io.Reader, version serialization.ProtocolVersion) (*TransactionBody, error) {
	body := &TransactionBody{}
	count, err := readCount(r, "inputs")
	if err != nil {
		return nil, err
	}
	if count > 0 {
		body.Inputs = make([]*Input, count)
	}
	for i := range body.Inputs {
		body.Inputs[i], err = DeserializeInput(r)
		if err != nil {
			return nil, err
		}
	}
	count, err = readCount(r, "outputs")
	if err != nil {
		return nil, err
	}
	if count > 0 {
		body.Outputs = make([]*Output, count)
	}
	for i := range body.Outputs {
		body.Outputs[i], err = DeserializeOutput(r)
		if err != nil {
			return nil, err
		}
	}
	count, err = readCount(r, "kernels")
	if err != nil {
		return nil, err
	}
	if count > 0 {
		body.Kernels = make([]*TxKernel, count)
	}
	for i := range body.Kernels {
		body.Kernels[i], err = DeserializeTxKernel(r, version)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Transaction is a body together with the kernel offset that splits its
// blinding factors between the kernel excesses and the offset.
type Transaction struct {
	Offset secp.BlindingFactor
	Body   TransactionBody
}

// Hash returns the hash of the serialized transaction.
func (tx *Transaction) Hash() *hashes.Hash {
	return serialization.HashOf(tx)
}

// Serialize writes the offset followed by the body.
func (tx *Transaction) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	_, err := w.Write(tx.Offset[:])
	if err != nil {
		return errors.WithStack(err)
	}
	return tx.Body.Serialize(w, version)
}

// DeserializeTransaction reads a transaction written by Serialize.
func DeserializeTransaction(r io.Reader, version serialization.ProtocolVersion) (*Transaction, error) {
	err := version.Validate()
	if err != nil {
		return nil, err
	}
	tx := &Transaction{}
	err = serialization.ReadFixedBytes(r, tx.Offset[:])
	if err != nil {
		return nil, err
	}
	body, err := DeserializeTransactionBody(r, version)
	if err != nil {
		return nil, err
	}
	tx.Body = *body
	return tx, nil
}

// Block is a header and the aggregated body of every transaction in it,
// plus the coinbase.
type Block struct {
	Header *BlockHeader
	Body   TransactionBody
}

// Hash returns the hash of the block header.
func (b *Block) Hash() *hashes.Hash {
	return b.Header.Hash()
}

// Serialize writes the header followed by the body.
func (b *Block) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	err := b.Header.Serialize(w, version)
	if err != nil {
		return err
	}
	return b.Body.Serialize(w, version)
}

// DeserializeBlock reads a block written by Serialize.
func DeserializeBlock(r io.Reader, version serialization.ProtocolVersion) (*Block, error) {
	header, err := DeserializeBlockHeader(r, version)
	if err != nil {
		return nil, err
	}
	body, err := DeserializeTransactionBody(r, version)
	if err != nil {
		return nil, err
	}
	return &Block{Header: header, Body: *body}, nil
}

// BlockFromBytes decodes a block serialized with the current protocol
// version. Trailing bytes are an error.
func BlockFromBytes(data []byte) (*Block, error) {
	r := bytes.NewReader(data)
	block, err := DeserializeBlock(r, serialization.CurrentProtocolVersion)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.Wrapf(serialization.ErrMalformed, "%d trailing bytes after block", r.Len())
	}
	return block, nil
}
