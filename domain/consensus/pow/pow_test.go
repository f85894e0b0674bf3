package pow

import (
	"bytes"
	"math"
	"reflect"
	"testing"

	"github.com/mwcnet/mwcd/domain/global"
	"github.com/pkg/errors"
)

var testHeader = []byte("pre-pow header bytes used by the pow tests")

// solve searches header nonces until the context finds a cycle.
func solve(t *testing.T, ctx Context, maxNonce uint64) (uint64, *Proof) {
	for nonce := uint64(0); nonce < maxNonce; nonce++ {
		ctx.SetHeaderNonce(testHeader, nonce)
		proofs := ctx.FindCycles()
		if len(proofs) > 0 {
			return nonce, proofs[0]
		}
	}
	t.Fatalf("no cycle found in %d nonces", maxNonce)
	return 0, nil
}

func TestCuckatooSolveAndVerify(t *testing.T) {
	ctx := NewCuckatooContext(10, 8, 1)
	nonce, proof := solve(t, ctx, 500)

	verifier := NewCuckatooContext(10, 8, 1)
	verifier.SetHeaderNonce(testHeader, nonce)
	err := verifier.Verify(proof)
	if err != nil {
		t.Fatalf("TestCuckatooSolveAndVerify: valid proof failed to verify: %s", err)
	}

	verifier.SetHeaderNonce(testHeader, nonce+1)
	err = verifier.Verify(proof)
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("TestCuckatooSolveAndVerify: proof verified against another header nonce")
	}

	verifier.SetHeaderNonce(testHeader, nonce)
	tampered := proof.Clone()
	tampered.Nonces[0], tampered.Nonces[1] = tampered.Nonces[1], tampered.Nonces[0]
	if !errors.Is(verifier.Verify(tampered), ErrVerification) {
		t.Fatalf("TestCuckatooSolveAndVerify: unsorted proof verified")
	}

	tampered = proof.Clone()
	tampered.Nonces[len(tampered.Nonces)-1] = 1 << 10
	if !errors.Is(verifier.Verify(tampered), ErrVerification) {
		t.Fatalf("TestCuckatooSolveAndVerify: proof with a nonce beyond the edge mask verified")
	}

	tampered = proof.Clone()
	tampered.Nonces = tampered.Nonces[:6]
	if !errors.Is(verifier.Verify(tampered), ErrVerification) {
		t.Fatalf("TestCuckatooSolveAndVerify: short proof verified")
	}
}

func TestCuckaroodSolveAndVerify(t *testing.T) {
	ctx := NewCuckaroodContext(10, 8)
	nonce, proof := solve(t, ctx, 2000)

	verifier := NewCuckaroodContext(10, 8)
	verifier.SetHeaderNonce(testHeader, nonce)
	err := verifier.Verify(proof)
	if err != nil {
		t.Fatalf("TestCuckaroodSolveAndVerify: valid proof failed to verify: %s", err)
	}

	even := 0
	for _, n := range proof.Nonces {
		if n&1 == 0 {
			even++
		}
	}
	if even != len(proof.Nonces)/2 {
		t.Fatalf("TestCuckaroodSolveAndVerify: expected balanced directions, got %d even nonces", even)
	}

	unbalanced := &Proof{EdgeBits: 10, Nonces: []uint64{0, 2, 4, 6, 8, 10, 12, 14}}
	if !errors.Is(verifier.Verify(unbalanced), ErrVerification) {
		t.Fatalf("TestCuckaroodSolveAndVerify: unbalanced proof verified")
	}
}

func TestCreateContext(t *testing.T) {
	tests := []struct {
		chainType global.ChainType
		edgeBits  uint8
		cuckatoo  bool
	}{
		{global.Mainnet, 31, true},
		{global.Mainnet, 29, false},
		{global.Floonet, 32, true},
		{global.Floonet, 29, false},
		{global.AutomatedTesting, 10, true},
		{global.UserTesting, 29, true},
	}
	for i, test := range tests {
		ctx, err := CreateContext(test.chainType, test.edgeBits, 42, 1)
		if err != nil {
			t.Fatalf("TestCreateContext: test #%d: %s", i, err)
		}
		_, isCuckatoo := ctx.(*CuckatooContext)
		if isCuckatoo != test.cuckatoo {
			t.Errorf("TestCreateContext: test #%d: %s with %d edge bits: expected cuckatoo=%t",
				i, test.chainType, test.edgeBits, test.cuckatoo)
		}
	}

	_, err := CreateContext(global.Mainnet, 31, 41, 1)
	if err == nil {
		t.Fatalf("TestCreateContext: odd proof size was accepted")
	}
}

func TestProofSerialization(t *testing.T) {
	proof := &Proof{EdgeBits: 29, Nonces: []uint64{1, 5, 1 << 20, 1<<29 - 1}}
	var buf bytes.Buffer
	err := proof.Serialize(&buf, 0)
	if err != nil {
		t.Fatalf("TestProofSerialization: %s", err)
	}
	if buf.Len() != 2+(4*29+7)/8 {
		t.Fatalf("TestProofSerialization: unexpected serialized size %d", buf.Len())
	}
	decoded, err := DeserializeProof(&buf)
	if err != nil {
		t.Fatalf("TestProofSerialization: %s", err)
	}
	if !reflect.DeepEqual(proof, decoded) {
		t.Fatalf("TestProofSerialization: expected %v, got %v", proof, decoded)
	}
	if !proof.IsSecondary() {
		t.Fatalf("TestProofSerialization: a 29 edge bits proof should be secondary")
	}
}

func TestToDifficulty(t *testing.T) {
	proof := &Proof{EdgeBits: 10, Nonces: []uint64{1, 2, 3, 4, 5, 6, 7, 8}}
	hashValue := proof.Hash().ToU64()
	difficulty := proof.ToDifficulty(1)
	if hashValue > 1 && difficulty != math.MaxUint64/hashValue && difficulty != math.MaxUint64/hashValue+1 {
		t.Fatalf("TestToDifficulty: unexpected difficulty %d for hash %d", difficulty, hashValue)
	}
	if proof.ToDifficulty(hashValue) != math.MaxUint64 {
		t.Fatalf("TestToDifficulty: expected saturation when scaling reaches the hash")
	}
	if proof.ToDifficulty(20) < proof.ToDifficulty(1) {
		t.Fatalf("TestToDifficulty: difficulty should grow with scaling")
	}
}
