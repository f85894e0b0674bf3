package verifiercache

import (
	"testing"

	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
)

func testOutput(seed byte) *model.Output {
	output := &model.Output{Proof: secp.RangeProof{seed, seed, seed}}
	output.Commitment[0] = 0x08
	output.Commitment[1] = seed
	return output
}

func testKernel(seed byte) *model.TxKernel {
	kernel := &model.TxKernel{Features: model.PlainFeatures(1)}
	kernel.Excess[1] = seed
	kernel.Signature[0] = seed
	return kernel
}

func TestRangeProofs(t *testing.T) {
	cache, err := New(DefaultSize)
	if err != nil {
		t.Fatalf("TestRangeProofs: New: %s", err)
	}
	output := testOutput(1)

	unverified := cache.FilterRangeProofUnverified([]*model.Output{output})
	if len(unverified) != 1 || unverified[0] != output {
		t.Fatalf("TestRangeProofs: expected the output to be unverified, got %d outputs", len(unverified))
	}

	cache.AddRangeProofVerified([]*model.Output{output})
	unverified = cache.FilterRangeProofUnverified([]*model.Output{output})
	if len(unverified) != 0 {
		t.Fatalf("TestRangeProofs: expected no unverified outputs, got %d", len(unverified))
	}

	// Same commitment, different proof
	tampered := testOutput(1)
	tampered.Proof = secp.RangeProof{9}
	unverified = cache.FilterRangeProofUnverified([]*model.Output{tampered})
	if len(unverified) != 1 {
		t.Fatalf("TestRangeProofs: a different proof must not be considered verified")
	}
}

func TestKernelSigs(t *testing.T) {
	cache, err := New(DefaultSize)
	if err != nil {
		t.Fatalf("TestKernelSigs: New: %s", err)
	}
	kernels := []*model.TxKernel{testKernel(1), testKernel(2)}
	cache.AddKernelSigVerified(kernels[:1])
	unverified := cache.FilterKernelSigUnverified(kernels)
	if len(unverified) != 1 || unverified[0] != kernels[1] {
		t.Fatalf("TestKernelSigs: expected only the second kernel to be unverified")
	}
}

func TestEviction(t *testing.T) {
	const capacity = 3
	cache, err := New(capacity)
	if err != nil {
		t.Fatalf("TestEviction: New: %s", err)
	}
	outputs := make([]*model.Output, capacity+1)
	for i := range outputs {
		outputs[i] = testOutput(byte(i))
	}
	cache.AddRangeProofVerified(outputs[:capacity])

	// Touch the first output so the second becomes the least recently used
	if len(cache.FilterRangeProofUnverified(outputs[:1])) != 0 {
		t.Fatalf("TestEviction: first output should be cached")
	}
	cache.AddRangeProofVerified(outputs[capacity:])

	for i, output := range outputs {
		unverified := cache.FilterRangeProofUnverified([]*model.Output{output})
		expectEvicted := i == 1
		if expectEvicted != (len(unverified) == 1) {
			t.Fatalf("TestEviction: output %d: expected evicted=%t", i, expectEvicted)
		}
	}

	if _, err := New(0); err == nil {
		t.Fatalf("TestEviction: expected an error for a zero capacity")
	}
}
