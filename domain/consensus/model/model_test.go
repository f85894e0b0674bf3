package model_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/pow"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/mwcnet/mwcd/domain/consensus/utils/transactionhelper"
	"github.com/pkg/errors"
)

const testReward = 60

func testHeader() *model.BlockHeader {
	return &model.BlockHeader{
		Version:           model.HeaderVersion,
		Height:            7,
		Timestamp:         1600000000,
		PrevHash:          *hashes.HashData([]byte("prev")),
		PrevRoot:          *hashes.HashData([]byte("prev root")),
		OutputRoot:        *hashes.HashData([]byte("output root")),
		RangeProofRoot:    *hashes.HashData([]byte("rangeproof root")),
		KernelRoot:        *hashes.HashData([]byte("kernel root")),
		OutputMMRSize:     11,
		KernelMMRSize:     8,
		TotalDifficulty:   1234,
		SecondaryScaling:  1856,
		Nonce:             42,
		PoW:               &pow.Proof{EdgeBits: 10, Nonces: []uint64{1, 2, 3, 5, 8, 13, 21, 34}},
		TotalKernelOffset: secp.BlindingFactorFromSeed([]byte("offset")),
	}
}

type testBlock struct {
	block    *model.Block
	coinbase *transactionhelper.Coin
	spent    *transactionhelper.Coin
}

// buildTestBlock builds a block with a coinbase, plus a transaction
// spending a coin minted earlier when fee is non zero.
func buildTestBlock(t *testing.T, fee uint64) *testBlock {
	header := testHeader()
	body := model.TransactionBody{}
	var transactions []*model.Transaction
	var spent *transactionhelper.Coin
	if fee > 0 {
		_, _, coin, err := transactionhelper.NewCoinbase(100, []byte("earlier"))
		if err != nil {
			t.Fatalf("NewCoinbase: %s", err)
		}
		tx, _, err := transactionhelper.NewTransaction([]*transactionhelper.Coin{coin}, []uint64{100 - fee},
			model.PlainFeatures(fee), []byte("spend"))
		if err != nil {
			t.Fatalf("NewTransaction: %s", err)
		}
		transactions = append(transactions, tx)
		spent = coin
	}
	output, kernel, coin, err := transactionhelper.NewCoinbase(testReward+fee, []byte("coinbase"))
	if err != nil {
		t.Fatalf("NewCoinbase: %s", err)
	}
	transactions = append(transactions, &model.Transaction{
		Body: model.TransactionBody{Outputs: []*model.Output{output}, Kernels: []*model.TxKernel{kernel}},
	})
	aggregate, err := transactionhelper.Aggregate(transactions)
	if err != nil {
		t.Fatalf("Aggregate: %s", err)
	}
	body = aggregate.Body
	header.TotalKernelOffset = aggregate.Offset
	return &testBlock{block: &model.Block{Header: header, Body: body}, coinbase: coin, spent: spent}
}

func TestHeaderRoundTrip(t *testing.T) {
	header := testHeader()
	data, err := serialization.ToBytes(header, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestHeaderRoundTrip: ToBytes: %s", err)
	}
	decoded, err := model.DeserializeBlockHeader(bytes.NewReader(data), serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestHeaderRoundTrip: DeserializeBlockHeader: %s", err)
	}
	if !reflect.DeepEqual(header, decoded) {
		t.Fatalf("TestHeaderRoundTrip: expected %s, got %s", spew.Sdump(header), spew.Sdump(decoded))
	}
	if !header.Hash().Equal(decoded.Hash()) {
		t.Fatalf("TestHeaderRoundTrip: hash changed after round trip")
	}

	prePoW := header.PrePoWBytes()
	if !bytes.HasPrefix(data, prePoW) {
		t.Fatalf("TestHeaderRoundTrip: pre-pow bytes are not a prefix of the header")
	}
	header.Nonce++
	if !bytes.Equal(prePoW, header.PrePoWBytes()) {
		t.Fatalf("TestHeaderRoundTrip: the nonce must not be part of the pre-pow bytes")
	}
	if header.Hash().Equal(decoded.Hash()) {
		t.Fatalf("TestHeaderRoundTrip: the nonce must be part of the hash")
	}

	_, err = model.DeserializeBlockHeader(bytes.NewReader(data), 0)
	if !errors.Is(err, serialization.ErrUnsupportedProtocolVersion) {
		t.Fatalf("TestHeaderRoundTrip: expected ErrUnsupportedProtocolVersion, got %v", err)
	}
}

func TestKernelSerialization(t *testing.T) {
	blind := secp.BlindingFactorFromSeed([]byte("kernel"))
	excess, err := secp.PublicKeyCommitment(&blind)
	if err != nil {
		t.Fatalf("TestKernelSerialization: PublicKeyCommitment: %s", err)
	}
	tests := []struct {
		features  model.KernelFeatures
		v1Allowed bool
	}{
		{features: model.PlainFeatures(7), v1Allowed: true},
		{features: model.CoinbaseFeatures(), v1Allowed: true},
		{features: model.HeightLockedFeatures(3, 100), v1Allowed: true},
		{features: model.NoRecentDuplicateFeatures(3, 1440), v1Allowed: false},
	}
	for i, test := range tests {
		kernel := &model.TxKernel{Features: test.features, Excess: excess}
		kernel.Signature, err = secp.Sign(kernel.Message()[:], &blind)
		if err != nil {
			t.Fatalf("TestKernelSerialization: test #%d: Sign: %s", i, err)
		}

		for _, version := range []serialization.ProtocolVersion{serialization.ProtocolVersion1,
			serialization.ProtocolVersion2, serialization.CurrentProtocolVersion} {

			data, err := serialization.ToBytes(kernel, version)
			if version == serialization.ProtocolVersion1 && !test.v1Allowed {
				if !errors.Is(err, serialization.ErrUnsupportedProtocolVersion) {
					t.Fatalf("TestKernelSerialization: test #%d: expected ErrUnsupportedProtocolVersion, "+
						"got %v", i, err)
				}
				continue
			}
			if err != nil {
				t.Fatalf("TestKernelSerialization: test #%d: version %d: ToBytes: %s", i, version, err)
			}
			decoded, err := model.DeserializeTxKernel(bytes.NewReader(data), version)
			if err != nil {
				t.Fatalf("TestKernelSerialization: test #%d: version %d: DeserializeTxKernel: %s",
					i, version, err)
			}
			if !reflect.DeepEqual(kernel, decoded) {
				t.Fatalf("TestKernelSerialization: test #%d: version %d: expected %s, got %s",
					i, version, spew.Sdump(kernel), spew.Sdump(decoded))
			}
		}
	}

	v1Plain := &model.TxKernel{Features: model.PlainFeatures(7), Excess: excess}
	v1, err := serialization.ToBytes(v1Plain, serialization.ProtocolVersion1)
	if err != nil {
		t.Fatalf("TestKernelSerialization: ToBytes: %s", err)
	}
	v2, err := serialization.ToBytes(v1Plain, serialization.ProtocolVersion2)
	if err != nil {
		t.Fatalf("TestKernelSerialization: ToBytes: %s", err)
	}
	if len(v1)-len(v2) != 8 {
		t.Fatalf("TestKernelSerialization: a v1 plain kernel carries an 8 byte lock height, "+
			"got sizes %d and %d", len(v1), len(v2))
	}

	bad := model.NoRecentDuplicateFeatures(3, 0)
	badKernel := &model.TxKernel{Features: bad, Excess: excess}
	data, err := serialization.ToBytes(badKernel, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestKernelSerialization: ToBytes: %s", err)
	}
	_, err = model.DeserializeTxKernel(bytes.NewReader(data), serialization.CurrentProtocolVersion)
	if !errors.Is(err, serialization.ErrMalformed) {
		t.Fatalf("TestKernelSerialization: expected ErrMalformed for a zero relative height, got %v", err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	testBlock := buildTestBlock(t, 5)
	block := testBlock.block
	for _, version := range []serialization.ProtocolVersion{serialization.ProtocolVersion1,
		serialization.CurrentProtocolVersion} {

		data, err := serialization.ToBytes(block, version)
		if err != nil {
			t.Fatalf("TestBlockRoundTrip: version %d: ToBytes: %s", version, err)
		}
		decoded, err := model.DeserializeBlock(bytes.NewReader(data), version)
		if err != nil {
			t.Fatalf("TestBlockRoundTrip: version %d: DeserializeBlock: %s", version, err)
		}
		if !reflect.DeepEqual(block, decoded) {
			t.Fatalf("TestBlockRoundTrip: version %d: expected %s, got %s",
				version, spew.Sdump(block), spew.Sdump(decoded))
		}
	}

	data, err := serialization.ToBytes(block, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestBlockRoundTrip: ToBytes: %s", err)
	}
	if _, err := model.BlockFromBytes(data); err != nil {
		t.Fatalf("TestBlockRoundTrip: BlockFromBytes: %s", err)
	}
	if _, err := model.BlockFromBytes(append(data, 0)); !errors.Is(err, serialization.ErrMalformed) {
		t.Fatalf("TestBlockRoundTrip: expected ErrMalformed for trailing bytes, got %v", err)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	_, _, coin, err := transactionhelper.NewCoinbase(50, []byte("tx round trip"))
	if err != nil {
		t.Fatalf("TestTransactionRoundTrip: NewCoinbase: %s", err)
	}
	tx, _, err := transactionhelper.NewTransaction([]*transactionhelper.Coin{coin}, []uint64{20, 28},
		model.HeightLockedFeatures(2, 5), []byte("tx round trip"))
	if err != nil {
		t.Fatalf("TestTransactionRoundTrip: NewTransaction: %s", err)
	}
	data, err := serialization.ToBytes(tx, serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestTransactionRoundTrip: ToBytes: %s", err)
	}
	decoded, err := model.DeserializeTransaction(bytes.NewReader(data), serialization.CurrentProtocolVersion)
	if err != nil {
		t.Fatalf("TestTransactionRoundTrip: DeserializeTransaction: %s", err)
	}
	if !reflect.DeepEqual(tx, decoded) {
		t.Fatalf("TestTransactionRoundTrip: expected %s, got %s", spew.Sdump(tx), spew.Sdump(decoded))
	}
	if !tx.Hash().Equal(decoded.Hash()) {
		t.Fatalf("TestTransactionRoundTrip: hash changed after round trip")
	}
}

func TestBlockValidation(t *testing.T) {
	testBlock := buildTestBlock(t, 5)
	body := &testBlock.block.Body

	err := body.VerifySorted()
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifySorted: %s", err)
	}
	err = body.VerifyCutThrough()
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifyCutThrough: %s", err)
	}
	err = model.VerifyRangeProofs(body.Outputs)
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifyRangeProofs: %s", err)
	}
	err = model.VerifyKernelSignatures(body.Kernels)
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifyKernelSignatures: %s", err)
	}
	err = body.VerifyCoinbase(testReward)
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifyCoinbase: %s", err)
	}
	offset := testBlock.block.Header.TotalKernelOffset
	err = body.VerifyKernelSums(testReward, &offset)
	if err != nil {
		t.Fatalf("TestBlockValidation: VerifyKernelSums: %s", err)
	}

	err = body.VerifyCoinbase(testReward + 1)
	if !ruleerrors.Is(err, ruleerrors.KindBlock) {
		t.Fatalf("TestBlockValidation: expected KindBlock for a wrong reward, got %v", err)
	}
	err = body.VerifyKernelSums(testReward+1, &offset)
	if !ruleerrors.Is(err, ruleerrors.KindCommitted) {
		t.Fatalf("TestBlockValidation: expected KindCommitted for a wrong overage, got %v", err)
	}
	err = body.VerifyKernelSums(testReward, &secp.ZeroBlindingFactor)
	if !ruleerrors.Is(err, ruleerrors.KindCommitted) {
		t.Fatalf("TestBlockValidation: expected KindCommitted for a wrong offset, got %v", err)
	}
	err = body.VerifyWeight(body.Weight() - 1)
	if !ruleerrors.Is(err, ruleerrors.KindBlock) {
		t.Fatalf("TestBlockValidation: expected KindBlock for an overweight body, got %v", err)
	}
}

func TestVerifyKernelSumsEmptyBody(t *testing.T) {
	body := &model.TransactionBody{}
	err := body.VerifyKernelSums(0, &secp.ZeroBlindingFactor)
	if err != nil {
		t.Fatalf("TestVerifyKernelSumsEmptyBody: VerifyKernelSums: %s", err)
	}
	err = body.VerifyKernelSums(1, &secp.ZeroBlindingFactor)
	if !ruleerrors.Is(err, ruleerrors.KindCommitted) {
		t.Fatalf("TestVerifyKernelSumsEmptyBody: expected KindCommitted for a non zero overage, got %v", err)
	}
	offset := secp.BlindingFactorFromSeed([]byte("TestVerifyKernelSumsEmptyBody"))
	err = body.VerifyKernelSums(0, &offset)
	if !ruleerrors.Is(err, ruleerrors.KindCommitted) {
		t.Fatalf("TestVerifyKernelSumsEmptyBody: expected KindCommitted for a non zero offset, got %v", err)
	}
}

func TestVerifyKernelSumsSingleCoinbase(t *testing.T) {
	output, kernel, _, err := transactionhelper.NewCoinbase(testReward, []byte("TestVerifyKernelSumsSingleCoinbase"))
	if err != nil {
		t.Fatalf("TestVerifyKernelSumsSingleCoinbase: NewCoinbase: %s", err)
	}
	body := &model.TransactionBody{Outputs: []*model.Output{output}, Kernels: []*model.TxKernel{kernel}}
	err = body.VerifyKernelSums(testReward, &secp.ZeroBlindingFactor)
	if err != nil {
		t.Fatalf("TestVerifyKernelSumsSingleCoinbase: VerifyKernelSums: %s", err)
	}
	err = body.VerifyCoinbase(testReward)
	if err != nil {
		t.Fatalf("TestVerifyKernelSumsSingleCoinbase: VerifyCoinbase: %s", err)
	}
	err = body.VerifyKernelSums(testReward-1, &secp.ZeroBlindingFactor)
	if !ruleerrors.Is(err, ruleerrors.KindCommitted) {
		t.Fatalf("TestVerifyKernelSumsSingleCoinbase: expected KindCommitted for a wrong overage, got %v", err)
	}
}

func TestVerifyCutThrough(t *testing.T) {
	testBlock := buildTestBlock(t, 0)
	body := testBlock.block.Body
	body.Inputs = append(body.Inputs, testBlock.coinbase.Input())
	err := body.VerifyCutThrough()
	if !ruleerrors.Is(err, ruleerrors.KindTransaction) {
		t.Fatalf("TestVerifyCutThrough: expected KindTransaction, got %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	testBlock := buildTestBlock(t, 5)
	body := testBlock.block.Body

	kernel := *body.Kernels[0]
	kernel.Features.Fee++
	err := model.VerifyKernelSignatures([]*model.TxKernel{&kernel})
	if !ruleerrors.Is(err, ruleerrors.KindTransaction) {
		t.Fatalf("TestVerifyTampered: expected KindTransaction for a changed fee, got %v", err)
	}

	output := *body.Outputs[0]
	output.Commitment = body.Outputs[1].Commitment
	err = model.VerifyRangeProofs([]*model.Output{&output})
	if !ruleerrors.Is(err, ruleerrors.KindTransaction) {
		t.Fatalf("TestVerifyTampered: expected KindTransaction for a swapped proof, got %v", err)
	}
}

func TestVerifyLockHeights(t *testing.T) {
	heightLocked := &model.TxKernel{Features: model.HeightLockedFeatures(1, 10)}
	nrd := &model.TxKernel{Features: model.NoRecentDuplicateFeatures(1, 5)}
	tests := []struct {
		height     uint64
		kernels    []*model.TxKernel
		nrdEnabled bool
		expected   ruleerrors.Kind
		expectErr  bool
	}{
		{height: 10, kernels: []*model.TxKernel{heightLocked}},
		{height: 9, kernels: []*model.TxKernel{heightLocked}, expectErr: true, expected: ruleerrors.KindTxLockHeight},
		{height: 20, kernels: []*model.TxKernel{nrd}, nrdEnabled: true},
		{height: 20, kernels: []*model.TxKernel{nrd}, expectErr: true, expected: ruleerrors.KindTransaction},
		{height: 14, kernels: []*model.TxKernel{nrd}, nrdEnabled: true, expectErr: true,
			expected: ruleerrors.KindTransaction},
	}
	for i, test := range tests {
		err := model.VerifyLockHeights(test.height, test.kernels, test.nrdEnabled, 15)
		if !test.expectErr {
			if err != nil {
				t.Fatalf("TestVerifyLockHeights: test #%d: unexpected error %s", i, err)
			}
			continue
		}
		if !ruleerrors.Is(err, test.expected) {
			t.Fatalf("TestVerifyLockHeights: test #%d: expected %s, got %v", i, test.expected, err)
		}
	}
}

func TestBodySortAndWeight(t *testing.T) {
	testBlock := buildTestBlock(t, 5)
	body := testBlock.block.Body
	if !body.IsSorted() {
		t.Fatalf("TestBodySortAndWeight: built body is not sorted")
	}
	body.Outputs[0], body.Outputs[1] = body.Outputs[1], body.Outputs[0]
	if err := body.VerifySorted(); !ruleerrors.Is(err, ruleerrors.KindTransaction) {
		t.Fatalf("TestBodySortAndWeight: expected KindTransaction for an unsorted body, got %v", err)
	}
	body.Sort()
	if !body.IsSorted() {
		t.Fatalf("TestBodySortAndWeight: body is not sorted after Sort")
	}

	expectedWeight := uint64(1*model.InputWeight + 2*model.OutputWeight + 2*model.KernelWeight)
	if body.Weight() != expectedWeight {
		t.Fatalf("TestBodySortAndWeight: expected weight %d, got %d", expectedWeight, body.Weight())
	}
}
