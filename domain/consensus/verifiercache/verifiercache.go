package verifiercache

import (
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// DefaultSize is the default capacity of each of the two caches.
const DefaultSize = 50000

// VerifierCache remembers range proofs and kernel signatures that were
// already verified. It is never a source of truth: a miss only means the
// item is verified again.
//
// Implementations are not safe for concurrent use. Filtering updates the
// recency of cached items, so callers hold a write lock for every call.
type VerifierCache interface {
	// FilterRangeProofUnverified returns the outputs whose range proofs
	// are not known to be valid.
	FilterRangeProofUnverified(outputs []*model.Output) []*model.Output

	// AddRangeProofVerified marks the range proofs of outputs as valid.
	AddRangeProofVerified(outputs []*model.Output)

	// FilterKernelSigUnverified returns the kernels whose signatures are
	// not known to be valid.
	FilterKernelSigUnverified(kernels []*model.TxKernel) []*model.TxKernel

	// AddKernelSigVerified marks the signatures of kernels as valid.
	AddKernelSigVerified(kernels []*model.TxKernel)
}

// LruVerifierCache is a VerifierCache keeping two bounded sets, evicting
// the least recently used key when full.
type LruVerifierCache struct {
	rangeProofs *simplelru.LRU
	kernelSigs  *simplelru.LRU
}

// New returns an LruVerifierCache holding up to size range proofs and size
// kernel signatures.
func New(size int) (*LruVerifierCache, error) {
	rangeProofs, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	kernelSigs, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &LruVerifierCache{rangeProofs: rangeProofs, kernelSigs: kernelSigs}, nil
}

func rangeProofKey(output *model.Output) hashes.Hash {
	writer := hashes.NewHashWriter()
	writer.InfallibleWrite(output.Commitment[:])
	writer.InfallibleWrite(output.Proof)
	return *writer.Finalize()
}

func kernelSigKey(kernel *model.TxKernel) hashes.Hash {
	writer := hashes.NewHashWriter()
	writer.InfallibleWrite(kernel.Excess[:])
	writer.InfallibleWrite(kernel.Signature[:])
	return *writer.Finalize()
}

// FilterRangeProofUnverified implements VerifierCache.
func (c *LruVerifierCache) FilterRangeProofUnverified(outputs []*model.Output) []*model.Output {
	unverified := make([]*model.Output, 0, len(outputs))
	for _, output := range outputs {
		if _, ok := c.rangeProofs.Get(rangeProofKey(output)); !ok {
			unverified = append(unverified, output)
		}
	}
	log.Tracef("Range proofs: %d unverified out of %d", len(unverified), len(outputs))
	return unverified
}

// AddRangeProofVerified implements VerifierCache.
func (c *LruVerifierCache) AddRangeProofVerified(outputs []*model.Output) {
	for _, output := range outputs {
		c.rangeProofs.Add(rangeProofKey(output), struct{}{})
	}
}

// FilterKernelSigUnverified implements VerifierCache.
func (c *LruVerifierCache) FilterKernelSigUnverified(kernels []*model.TxKernel) []*model.TxKernel {
	unverified := make([]*model.TxKernel, 0, len(kernels))
	for _, kernel := range kernels {
		if _, ok := c.kernelSigs.Get(kernelSigKey(kernel)); !ok {
			unverified = append(unverified, kernel)
		}
	}
	log.Tracef("Kernel signatures: %d unverified out of %d", len(unverified), len(kernels))
	return unverified
}

// AddKernelSigVerified implements VerifierCache.
func (c *LruVerifierCache) AddKernelSigVerified(kernels []*model.TxKernel) {
	for _, kernel := range kernels {
		c.kernelSigs.Add(kernelSigKey(kernel), struct{}{})
	}
}
