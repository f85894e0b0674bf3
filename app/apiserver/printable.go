package apiserver

import (
	"encoding/hex"
	"time"

	"github.com/mwcnet/mwcd/domain/chain"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/txhashset"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
)

// BlockHeaderPrintable is the JSON form of a block header.
type BlockHeaderPrintable struct {
	Hash              string   `json:"hash"`
	Version           uint16   `json:"version"`
	Height            uint64   `json:"height"`
	Previous          string   `json:"previous"`
	PrevRoot          string   `json:"prev_root"`
	Timestamp         string   `json:"timestamp"`
	OutputRoot        string   `json:"output_root"`
	OutputMMRSize     uint64   `json:"output_mmr_size"`
	RangeProofRoot    string   `json:"range_proof_root"`
	KernelRoot        string   `json:"kernel_root"`
	KernelMMRSize     uint64   `json:"kernel_mmr_size"`
	Nonce             uint64   `json:"nonce"`
	EdgeBits          uint8    `json:"edge_bits"`
	CuckooSolution    []uint64 `json:"cuckoo_solution"`
	TotalDifficulty   uint64   `json:"total_difficulty"`
	SecondaryScaling  uint32   `json:"secondary_scaling"`
	TotalKernelOffset string   `json:"total_kernel_offset"`
}

func newBlockHeaderPrintable(header *model.BlockHeader) *BlockHeaderPrintable {
	printable := &BlockHeaderPrintable{
		Hash:              header.Hash().String(),
		Version:           header.Version,
		Height:            header.Height,
		Previous:          header.PrevHash.String(),
		PrevRoot:          header.PrevRoot.String(),
		Timestamp:         time.Unix(header.Timestamp, 0).UTC().Format(time.RFC3339),
		OutputRoot:        header.OutputRoot.String(),
		OutputMMRSize:     header.OutputMMRSize,
		RangeProofRoot:    header.RangeProofRoot.String(),
		KernelRoot:        header.KernelRoot.String(),
		KernelMMRSize:     header.KernelMMRSize,
		Nonce:             header.Nonce,
		TotalDifficulty:   header.TotalDifficulty,
		SecondaryScaling:  header.SecondaryScaling,
		TotalKernelOffset: header.TotalKernelOffset.String(),
	}
	if header.PoW != nil {
		printable.EdgeBits = header.PoW.EdgeBits
		printable.CuckooSolution = header.PoW.Nonces
	}
	return printable
}

// TxKernelPrintable is the JSON form of a transaction kernel.
type TxKernelPrintable struct {
	Features       string `json:"features"`
	Fee            uint64 `json:"fee"`
	LockHeight     uint64 `json:"lock_height"`
	RelativeHeight uint16 `json:"relative_height,omitempty"`
	Excess         string `json:"excess"`
	ExcessSig      string `json:"excess_sig"`
}

func newTxKernelPrintable(kernel *model.TxKernel) *TxKernelPrintable {
	return &TxKernelPrintable{
		Features:       kernel.Features.Kind.String(),
		Fee:            kernel.Features.Fee,
		LockHeight:     kernel.Features.LockHeight,
		RelativeHeight: kernel.Features.RelativeHeight,
		Excess:         kernel.Excess.String(),
		ExcessSig:      kernel.Signature.String(),
	}
}

// OutputPrintable is the JSON form of an output, along with whether it's
// spent and where it is in the output MMR.
type OutputPrintable struct {
	OutputType  string  `json:"output_type"`
	Commit      string  `json:"commit"`
	Spent       bool    `json:"spent"`
	Proof       *string `json:"proof"`
	ProofHash   string  `json:"proof_hash"`
	BlockHeight *uint64 `json:"block_height"`
	MerkleProof *string `json:"merkle_proof"`
	MMRIndex    uint64  `json:"mmr_index"`
}

// outputPrintableBuilder builds OutputPrintables against a single read
// view, so every output of a response reflects the same head.
type outputPrintableBuilder struct {
	chain *chain.Chain
	view  *txhashset.ReadView
}

// unspentPos returns the position of the output with the given
// commitment, or nil if it's spent or unknown.
func (b *outputPrintableBuilder) unspentPos(commitment *secp.Commitment) (*model.CommitPos, error) {
	pos, err := b.chain.GetOutputPos(commitment)
	if chain.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if pos.Pos > b.view.OutputMMRSize() || b.view.IsSpent(pos.Pos) {
		return nil, nil
	}
	identifier, err := b.view.Output(pos.Pos)
	if err != nil {
		if chain.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	if identifier.Commitment != *commitment {
		return nil, nil
	}
	return pos, nil
}

func (b *outputPrintableBuilder) build(output *model.Output, includeProof bool,
	includeMerkleProof bool) (*OutputPrintable, error) {

	printable := &OutputPrintable{
		OutputType: output.Features.String(),
		Commit:     output.Commitment.String(),
		ProofHash:  output.ProofHash().String(),
	}
	if includeProof {
		proof := hex.EncodeToString(output.Proof)
		printable.Proof = &proof
	}

	pos, err := b.unspentPos(&output.Commitment)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		printable.Spent = true
		return printable, nil
	}
	printable.MMRIndex = pos.Pos
	height := pos.Height
	printable.BlockHeight = &height

	if includeMerkleProof && output.IsCoinbase() {
		merkleProof, err := b.view.OutputMerkleProof(pos.Pos)
		if err != nil {
			return nil, err
		}
		merkleProofBytes, err := serialization.ToBytes(merkleProof, serialization.CurrentProtocolVersion)
		if err != nil {
			return nil, err
		}
		merkleProofHex := hex.EncodeToString(merkleProofBytes)
		printable.MerkleProof = &merkleProofHex
	}
	return printable, nil
}

// BlockPrintable is the JSON form of a full block.
type BlockPrintable struct {
	Header  *BlockHeaderPrintable `json:"header"`
	Inputs  []string              `json:"inputs"`
	Outputs []*OutputPrintable    `json:"outputs"`
	Kernels []*TxKernelPrintable  `json:"kernels"`
}

func (b *outputPrintableBuilder) buildBlock(block *model.Block, includeProof bool,
	includeMerkleProof bool) (*BlockPrintable, error) {

	printable := &BlockPrintable{
		Header:  newBlockHeaderPrintable(block.Header),
		Inputs:  make([]string, len(block.Body.Inputs)),
		Outputs: make([]*OutputPrintable, len(block.Body.Outputs)),
		Kernels: make([]*TxKernelPrintable, len(block.Body.Kernels)),
	}
	for i, input := range block.Body.Inputs {
		printable.Inputs[i] = input.Commitment.String()
	}
	for i, output := range block.Body.Outputs {
		outputPrintable, err := b.build(output, includeProof, includeMerkleProof)
		if err != nil {
			return nil, err
		}
		printable.Outputs[i] = outputPrintable
	}
	for i, kernel := range block.Body.Kernels {
		printable.Kernels[i] = newTxKernelPrintable(kernel)
	}
	return printable, nil
}

// CompactBlockPrintable is the JSON form of a compact block: the coinbase
// outputs and kernels in full, and the hashes of every other kernel.
type CompactBlockPrintable struct {
	Header   *BlockHeaderPrintable `json:"header"`
	OutFull  []*OutputPrintable    `json:"out_full"`
	KernFull []*TxKernelPrintable  `json:"kern_full"`
	KernIDs  []string              `json:"kern_ids"`
}

func (b *outputPrintableBuilder) buildCompactBlock(block *model.Block) (*CompactBlockPrintable, error) {
	printable := &CompactBlockPrintable{
		Header:   newBlockHeaderPrintable(block.Header),
		OutFull:  []*OutputPrintable{},
		KernFull: []*TxKernelPrintable{},
		KernIDs:  []string{},
	}
	for _, output := range block.Body.Outputs {
		if !output.IsCoinbase() {
			continue
		}
		outputPrintable, err := b.build(output, false, false)
		if err != nil {
			return nil, err
		}
		printable.OutFull = append(printable.OutFull, outputPrintable)
	}
	for _, kernel := range block.Body.Kernels {
		if kernel.IsCoinbase() {
			printable.KernFull = append(printable.KernFull, newTxKernelPrintable(kernel))
			continue
		}
		printable.KernIDs = append(printable.KernIDs, kernel.Hash().String())
	}
	return printable, nil
}

// TipPrintable is the JSON form of a chain tip.
type TipPrintable struct {
	Height          uint64 `json:"height"`
	LastBlockPushed string `json:"last_block_pushed"`
	PrevBlockToLast string `json:"prev_block_to_last"`
	TotalDifficulty uint64 `json:"total_difficulty"`
}

func newTipPrintable(tip *model.Tip) *TipPrintable {
	return &TipPrintable{
		Height:          tip.Height,
		LastBlockPushed: tip.LastBlockHash.String(),
		PrevBlockToLast: tip.PrevBlockHash.String(),
		TotalDifficulty: tip.TotalDifficulty,
	}
}

// StatusPrintable is the JSON form of the node status.
type StatusPrintable struct {
	Network    string        `json:"network"`
	Tip        *TipPrintable `json:"tip"`
	HeaderTip  *TipPrintable `json:"header_tip"`
	TailHeight uint64        `json:"tail_height"`
	Orphans    int           `json:"orphans"`
}

// LocatedTxKernelPrintable is the JSON form of a kernel along with where
// it is in the chain.
type LocatedTxKernelPrintable struct {
	TxKernel *TxKernelPrintable `json:"tx_kernel"`
	Height   uint64             `json:"height"`
	MMRIndex uint64             `json:"mmr_index"`
}

func newLocatedTxKernelPrintable(location *chain.KernelLocation) *LocatedTxKernelPrintable {
	return &LocatedTxKernelPrintable{
		TxKernel: newTxKernelPrintable(location.Kernel),
		Height:   location.Height,
		MMRIndex: location.MMRIndex,
	}
}
