package txhashset

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/mwcnet/mwcd/domain/chainconfig"
	"github.com/mwcnet/mwcd/domain/chainstore"
	"github.com/mwcnet/mwcd/domain/consensus/model"
	"github.com/mwcnet/mwcd/domain/consensus/ruleerrors"
	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/mwcnet/mwcd/domain/consensus/utils/transactionhelper"
	"github.com/mwcnet/mwcd/domain/global"
	"github.com/mwcnet/mwcd/infrastructure/db/database/ldb"
)

type testContext struct {
	t         *testing.T
	testName  string
	params    *chainconfig.Params
	store     *chainstore.ChainStore
	txHashSet *TxHashSet
}

func setupTxHashSet(t *testing.T, testName string) (tc *testContext, teardown func()) {
	return setupTxHashSetWithNRD(t, testName, true)
}

func setupTxHashSetWithNRD(t *testing.T, testName string, nrdEnabled bool) (tc *testContext, teardown func()) {
	path, err := ioutil.TempDir("", testName)
	if err != nil {
		t.Fatalf("%s: TempDir: %s", testName, err)
	}
	db, err := ldb.NewLevelDB(filepath.Join(path, "db"), 8)
	if err != nil {
		t.Fatalf("%s: NewLevelDB: %s", testName, err)
	}
	store, err := chainstore.New(db, 10)
	if err != nil {
		t.Fatalf("%s: chainstore.New: %s", testName, err)
	}
	params := chainconfig.AutomatedTestingParams
	txHashSet, err := Open(path, params, global.NewRunningFlag(), nrdEnabled)
	if err != nil {
		t.Fatalf("%s: Open: %s", testName, err)
	}
	tc = &testContext{t: t, testName: testName, params: params, store: store, txHashSet: txHashSet}
	tc.mustApply(params.GenesisBlock)
	return tc, func() {
		txHashSet.Close()
		store.Close()
		os.RemoveAll(path)
	}
}

// buildBlock builds a valid block on top of prev holding txs and a
// coinbase, with the roots and sizes the txhashset yields when applying it.
func (tc *testContext) buildBlock(prev *model.BlockHeader, txs []*model.Transaction) (*model.Block, *transactionhelper.Coin) {
	height := prev.Height + 1
	body := model.TransactionBody{}
	offsets := []secp.BlindingFactor{prev.TotalKernelOffset}
	var fees uint64
	for _, tx := range txs {
		body.Inputs = append(body.Inputs, tx.Body.Inputs...)
		body.Outputs = append(body.Outputs, tx.Body.Outputs...)
		body.Kernels = append(body.Kernels, tx.Body.Kernels...)
		offsets = append(offsets, tx.Offset)
		fees += tx.Body.Fee()
	}
	output, kernel, coin, err := transactionhelper.NewCoinbase(tc.params.Reward()+fees,
		[]byte(fmt.Sprintf("%s coinbase %d %s", tc.testName, height, prev.Hash())))
	if err != nil {
		tc.t.Fatalf("%s: NewCoinbase: %s", tc.testName, err)
	}
	body.Outputs = append(body.Outputs, output)
	body.Kernels = append(body.Kernels, kernel)
	body.Sort()

	totalOffset, err := secp.BlindSum(offsets, nil)
	if err != nil {
		tc.t.Fatalf("%s: BlindSum: %s", tc.testName, err)
	}
	header := &model.BlockHeader{
		Version:           model.HeaderVersion,
		Height:            height,
		Timestamp:         prev.Timestamp + 60,
		PrevHash:          *prev.Hash(),
		TotalDifficulty:   prev.TotalDifficulty + 1,
		SecondaryScaling:  prev.SecondaryScaling,
		PoW:               prev.PoW.Clone(),
		TotalKernelOffset: totalOffset,
	}
	block := &model.Block{Header: header, Body: body}

	batch, err := tc.store.Batch()
	if err != nil {
		tc.t.Fatalf("%s: Batch: %s", tc.testName, err)
	}
	defer batch.Rollback()
	err = tc.txHashSet.Extending(batch, func(extension *Extension) error {
		extension.ForceRollback()
		if !extension.Header().Hash().Equal(prev.Hash()) {
			err := extension.Rewind(prev)
			if err != nil {
				return err
			}
		}
		err := extension.ApplyBlockBody(block)
		if err != nil {
			return err
		}
		roots, err := extension.Roots()
		if err != nil {
			return err
		}
		sizes := extension.Sizes()
		header.OutputRoot = *roots.OutputRoot
		header.RangeProofRoot = *roots.RangeProofRoot
		header.KernelRoot = *roots.KernelRoot
		header.OutputMMRSize = sizes.OutputMMRSize
		header.KernelMMRSize = sizes.KernelMMRSize
		return nil
	})
	if err != nil {
		tc.t.Fatalf("%s: building block at height %d: %s", tc.testName, height, err)
	}
	return block, coin
}

func (tc *testContext) apply(block *model.Block) error {
	batch, err := tc.store.Batch()
	if err != nil {
		return err
	}
	defer batch.Rollback()
	err = batch.SaveBlockHeader(block.Header)
	if err != nil {
		return err
	}
	err = batch.SaveBlock(block)
	if err != nil {
		return err
	}
	err = tc.txHashSet.Extending(batch, func(extension *Extension) error {
		return extension.ApplyBlock(block)
	})
	if err != nil {
		return err
	}
	err = batch.SaveHeaderHashByHeight(block.Header.Height, block.Hash())
	if err != nil {
		return err
	}
	err = batch.SaveHead(model.NewTip(block.Header))
	if err != nil {
		return err
	}
	return batch.Commit()
}

func (tc *testContext) mustApply(block *model.Block) {
	err := tc.apply(block)
	if err != nil {
		tc.t.Fatalf("%s: applying block at height %d: %s", tc.testName, block.Header.Height, err)
	}
}

func (tc *testContext) head() *model.BlockHeader {
	header, err := tc.store.HeadHeader()
	if err != nil {
		tc.t.Fatalf("%s: HeadHeader: %s", tc.testName, err)
	}
	return header
}

// mineCoinbases applies n blocks holding only a coinbase and returns the
// coinbase of the first.
func (tc *testContext) mineCoinbases(n int) *transactionhelper.Coin {
	var first *transactionhelper.Coin
	for i := 0; i < n; i++ {
		block, coin := tc.buildBlock(tc.head(), nil)
		tc.mustApply(block)
		if first == nil {
			first = coin
		}
	}
	return first
}

func (tc *testContext) spend(coin *transactionhelper.Coin, fee uint64, seed string) (*model.Transaction, []*transactionhelper.Coin) {
	tx, coins, err := transactionhelper.NewTransaction([]*transactionhelper.Coin{coin},
		[]uint64{coin.Value - fee}, model.PlainFeatures(fee), []byte(seed))
	if err != nil {
		tc.t.Fatalf("%s: NewTransaction: %s", tc.testName, err)
	}
	return tx, coins
}

func TestApplyBlockAndRewind(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestApplyBlockAndRewind")
	defer teardown()

	coinbase := tc.mineCoinbases(4)
	forkPoint := tc.head()

	tx, coins := tc.spend(coinbase, 7, "TestApplyBlockAndRewind spend")
	block, _ := tc.buildBlock(forkPoint, []*model.Transaction{tx})
	tc.mustApply(block)

	_, err := tc.store.GetOutputPos(&coinbase.Commitment)
	if !chainstore.IsNotFoundError(err) {
		t.Fatalf("TestApplyBlockAndRewind: expected the spent coinbase to leave the index, got %v", err)
	}
	newPos, err := tc.store.GetOutputPos(&coins[0].Commitment)
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: GetOutputPos: %s", err)
	}
	if newPos.Height != block.Header.Height {
		t.Fatalf("TestApplyBlockAndRewind: expected output height %d, got %d", block.Header.Height, newPos.Height)
	}
	journal, err := tc.store.GetSpentJournal(block.Hash())
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: GetSpentJournal: %s", err)
	}
	if len(journal) != 1 || journal[0].Commitment != coinbase.Commitment {
		t.Fatalf("TestApplyBlockAndRewind: unexpected spent journal %v", journal)
	}
	spentPos := journal[0].Pos

	batch, err := tc.store.Batch()
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: Batch: %s", err)
	}
	defer batch.Rollback()
	err = tc.txHashSet.Extending(batch, func(extension *Extension) error {
		err := extension.Rewind(forkPoint)
		if err != nil {
			return err
		}
		err = extension.ValidateRoots(forkPoint)
		if err != nil {
			return err
		}
		err = extension.ValidateSizes(forkPoint)
		if err != nil {
			return err
		}
		return extension.Validate()
	})
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: rewinding: %s", err)
	}
	err = batch.SaveHead(model.NewTip(forkPoint))
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: SaveHead: %s", err)
	}
	err = batch.Commit()
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: Commit: %s", err)
	}

	restored, err := tc.store.GetOutputPos(&coinbase.Commitment)
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: expected the coinbase position to be restored: %s", err)
	}
	if restored.Pos != spentPos {
		t.Fatalf("TestApplyBlockAndRewind: expected restored position %d, got %d", spentPos, restored.Pos)
	}
	_, err = tc.store.GetOutputPos(&coins[0].Commitment)
	if !chainstore.IsNotFoundError(err) {
		t.Fatalf("TestApplyBlockAndRewind: expected the rewound output to leave the index, got %v", err)
	}
	err = tc.txHashSet.ValidateAgainst(forkPoint)
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: ValidateAgainst: %s", err)
	}

	// Applying the same block again yields the same state.
	tc.mustApply(block)
	err = tc.txHashSet.ValidateAgainst(block.Header)
	if err != nil {
		t.Fatalf("TestApplyBlockAndRewind: ValidateAgainst after reapplying: %s", err)
	}
}

func TestSpendingRules(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestSpendingRules")
	defer teardown()

	coinbase := tc.mineCoinbases(1)

	immatureTx, _ := tc.spend(coinbase, 1, "TestSpendingRules immature")
	immature, _ := tc.buildBlockUnchecked(tc.head(), []*model.Transaction{immatureTx})
	err := tc.apply(immature)
	if !ruleerrors.Is(err, ruleerrors.KindImmatureCoinbase) {
		t.Fatalf("TestSpendingRules: expected ImmatureCoinbase, got %v", err)
	}

	tc.mineCoinbases(3)
	tx, _ := tc.spend(coinbase, 1, "TestSpendingRules spend")
	block, _ := tc.buildBlock(tc.head(), []*model.Transaction{tx})
	tc.mustApply(block)

	doubleSpendTx, _ := tc.spend(coinbase, 2, "TestSpendingRules double spend")
	doubleSpend, _ := tc.buildBlockUnchecked(tc.head(), []*model.Transaction{doubleSpendTx})
	err = tc.apply(doubleSpend)
	if !ruleerrors.Is(err, ruleerrors.KindAlreadySpent) {
		t.Fatalf("TestSpendingRules: expected AlreadySpent, got %v", err)
	}

	sizes := tc.txHashSet.Sizes()
	if sizes.OutputMMRSize != block.Header.OutputMMRSize || sizes.KernelMMRSize != block.Header.KernelMMRSize {
		t.Fatalf("TestSpendingRules: expected the failed blocks to be discarded, got sizes %+v", sizes)
	}
}

// buildBlockUnchecked builds a block whose body may not apply. Its roots
// are left at zero.
func (tc *testContext) buildBlockUnchecked(prev *model.BlockHeader, txs []*model.Transaction) (*model.Block, *transactionhelper.Coin) {
	block, coin := tc.buildBlock(prev, nil)
	for _, tx := range txs {
		block.Body.Inputs = append(block.Body.Inputs, tx.Body.Inputs...)
		block.Body.Outputs = append(block.Body.Outputs, tx.Body.Outputs...)
		block.Body.Kernels = append(block.Body.Kernels, tx.Body.Kernels...)
	}
	block.Body.Sort()
	return block, coin
}

func TestInvalidRoots(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestInvalidRoots")
	defer teardown()

	tc.mineCoinbases(2)
	head := tc.head()

	tests := []struct {
		name   string
		tamper func(header *model.BlockHeader)
		kind   ruleerrors.Kind
	}{
		{
			name:   "output root",
			tamper: func(header *model.BlockHeader) { header.OutputRoot[0] ^= 1 },
			kind:   ruleerrors.KindInvalidRoot,
		},
		{
			name:   "kernel root",
			tamper: func(header *model.BlockHeader) { header.KernelRoot[3] ^= 1 },
			kind:   ruleerrors.KindInvalidRoot,
		},
		{
			name:   "kernel MMR size",
			tamper: func(header *model.BlockHeader) { header.KernelMMRSize++ },
			kind:   ruleerrors.KindInvalidMMRSize,
		},
		{
			name: "kernel offset",
			tamper: func(header *model.BlockHeader) {
				header.TotalKernelOffset = secp.BlindingFactorFromSeed([]byte("TestInvalidRoots"))
			},
			kind: ruleerrors.KindCommitted,
		},
	}
	for _, test := range tests {
		block, _ := tc.buildBlock(head, nil)
		test.tamper(block.Header)
		err := tc.apply(block)
		if !ruleerrors.Is(err, test.kind) {
			t.Fatalf("TestInvalidRoots: %s: expected %s, got %v", test.name, test.kind, err)
		}
		err = tc.txHashSet.ValidateAgainst(head)
		if err != nil {
			t.Fatalf("TestInvalidRoots: %s: txhashset moved after a rejected block: %s", test.name, err)
		}
	}
}

func TestNRDRelativeHeight(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestNRDRelativeHeight")
	defer teardown()

	first := tc.mineCoinbases(1)
	second := tc.mineCoinbases(1)
	third := tc.mineCoinbases(1)
	tc.mineCoinbases(3)

	excessBlind := secp.BlindingFactorFromSeed([]byte("TestNRDRelativeHeight excess"))
	nrdSpend := func(coin *transactionhelper.Coin, seed string) *model.Transaction {
		tx, _, err := transactionhelper.NewTransactionWithExcess([]*transactionhelper.Coin{coin},
			[]uint64{coin.Value - 1}, model.NoRecentDuplicateFeatures(1, 2), excessBlind, []byte(seed))
		if err != nil {
			t.Fatalf("TestNRDRelativeHeight: NewTransactionWithExcess: %s", err)
		}
		return tx
	}

	block, _ := tc.buildBlock(tc.head(), []*model.Transaction{nrdSpend(first, "first")})
	tc.mustApply(block)
	nrdHeight := block.Header.Height

	tooSoon, _ := tc.buildBlockUnchecked(tc.head(), []*model.Transaction{nrdSpend(second, "second")})
	err := tc.apply(tooSoon)
	if !ruleerrors.Is(err, ruleerrors.KindNRDRelativeHeight) {
		t.Fatalf("TestNRDRelativeHeight: expected NRDRelativeHeight, got %v", err)
	}

	tc.mineCoinbases(1)
	block, _ = tc.buildBlock(tc.head(), []*model.Transaction{nrdSpend(third, "third")})
	tc.mustApply(block)

	excess, err := secp.PublicKeyCommitment(&excessBlind)
	if err != nil {
		t.Fatalf("TestNRDRelativeHeight: PublicKeyCommitment: %s", err)
	}
	entries, err := tc.store.GetNRDEntries(&excess)
	if err != nil {
		t.Fatalf("TestNRDRelativeHeight: GetNRDEntries: %s", err)
	}
	if len(entries) != 2 || entries[0].Height != nrdHeight || entries[1].Height != block.Header.Height {
		t.Fatalf("TestNRDRelativeHeight: unexpected NRD entries %v", entries)
	}

	view, err := tc.txHashSet.Snapshot(tc.store, block.Header)
	if err != nil {
		t.Fatalf("TestNRDRelativeHeight: Snapshot: %s", err)
	}
	kernel, pos, err := view.FindKernel(&excess, 0, 0)
	if err != nil {
		t.Fatalf("TestNRDRelativeHeight: FindKernel: %s", err)
	}
	if pos != entries[1].Pos || kernel.Features.Kind != model.KernelNoRecentDuplicate {
		t.Fatalf("TestNRDRelativeHeight: expected the latest NRD kernel at %d, got %d", entries[1].Pos, pos)
	}
}

func TestNRDEnabledPerInstance(t *testing.T) {
	enabled, teardownEnabled := setupTxHashSetWithNRD(t, "TestNRDEnabledPerInstance enabled", true)
	defer teardownEnabled()
	disabled, teardownDisabled := setupTxHashSetWithNRD(t, "TestNRDEnabledPerInstance disabled", false)
	defer teardownDisabled()

	if !enabled.txHashSet.NRDEnabled() || disabled.txHashSet.NRDEnabled() {
		t.Fatalf("TestNRDEnabledPerInstance: the NRD flag wasn't taken from Open")
	}

	excessBlind := secp.BlindingFactorFromSeed([]byte("TestNRDEnabledPerInstance excess"))
	for _, tc := range []*testContext{enabled, disabled} {
		coin := tc.mineCoinbases(1)
		tc.mineCoinbases(3)
		tx, _, err := transactionhelper.NewTransactionWithExcess([]*transactionhelper.Coin{coin},
			[]uint64{coin.Value - 1}, model.NoRecentDuplicateFeatures(1, 2), excessBlind, []byte(tc.testName))
		if err != nil {
			t.Fatalf("%s: NewTransactionWithExcess: %s", tc.testName, err)
		}

		if tc == enabled {
			block, _ := tc.buildBlock(tc.head(), []*model.Transaction{tx})
			tc.mustApply(block)
			continue
		}
		sizes := tc.txHashSet.Sizes()
		block, _ := tc.buildBlockUnchecked(tc.head(), []*model.Transaction{tx})
		err = tc.apply(block)
		if !ruleerrors.Is(err, ruleerrors.KindTransaction) {
			t.Fatalf("%s: expected KindTransaction for an NRD kernel, got %v", tc.testName, err)
		}
		if *tc.txHashSet.Sizes() != *sizes {
			t.Fatalf("%s: the rejected block wasn't discarded", tc.testName)
		}
	}
}

func TestReadView(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestReadView")
	defer teardown()

	coinbase := tc.mineCoinbases(1)
	atCoinbase := tc.head()
	tc.mineCoinbases(3)
	tx, _ := tc.spend(coinbase, 3, "TestReadView spend")
	block, _ := tc.buildBlock(tc.head(), []*model.Transaction{tx})
	tc.mustApply(block)

	view, err := tc.txHashSet.Snapshot(tc.store, atCoinbase)
	if err != nil {
		t.Fatalf("TestReadView: Snapshot: %s", err)
	}
	roots, err := view.Roots()
	if err != nil {
		t.Fatalf("TestReadView: Roots: %s", err)
	}
	if *roots.OutputRoot != atCoinbase.OutputRoot || *roots.KernelRoot != atCoinbase.KernelRoot {
		t.Fatalf("TestReadView: view roots don't match the header")
	}
	if view.IsSpent(1) {
		t.Fatalf("TestReadView: expected the first coinbase to be unspent at its own block")
	}
	identifier, err := view.Output(1)
	if err != nil {
		t.Fatalf("TestReadView: Output(1): %s", err)
	}
	if identifier.Commitment != coinbase.Commitment {
		t.Fatalf("TestReadView: unexpected output at position 1")
	}
	if _, err := view.RangeProof(1); err != nil {
		t.Fatalf("TestReadView: RangeProof(1): %s", err)
	}
	unspent := view.UnspentPositions()
	if len(unspent) != 1 || unspent[0] != 1 {
		t.Fatalf("TestReadView: expected the first coinbase to be the only unspent output, got %v", unspent)
	}
	proof, err := view.OutputMerkleProof(1)
	if err != nil {
		t.Fatalf("TestReadView: OutputMerkleProof(1): %s", err)
	}
	data, err := identifierBytes(identifier)
	if err != nil {
		t.Fatalf("TestReadView: serializing: %s", err)
	}
	err = proof.Verify(&atCoinbase.OutputRoot, data, 1)
	if err != nil {
		t.Fatalf("TestReadView: Merkle proof of 1: %s", err)
	}

	headView, err := tc.txHashSet.Snapshot(tc.store, block.Header)
	if err != nil {
		t.Fatalf("TestReadView: Snapshot: %s", err)
	}
	if !headView.IsSpent(1) {
		t.Fatalf("TestReadView: expected the first coinbase to be spent at the head")
	}
	_, err = headView.Output(1)
	if !ruleerrors.Is(err, ruleerrors.KindOutputNotFound) {
		t.Fatalf("TestReadView: expected OutputNotFound for a spent output, got %v", err)
	}
	for _, pos := range headView.UnspentPositions() {
		identifier, err := headView.Output(pos)
		if err != nil {
			t.Fatalf("TestReadView: Output(%d): %s", pos, err)
		}
		proof, err := headView.OutputMerkleProof(pos)
		if err != nil {
			t.Fatalf("TestReadView: OutputMerkleProof(%d): %s", pos, err)
		}
		data, err := identifierBytes(identifier)
		if err != nil {
			t.Fatalf("TestReadView: serializing: %s", err)
		}
		err = proof.Verify(&block.Header.OutputRoot, data, pos)
		if err != nil {
			t.Fatalf("TestReadView: Merkle proof of %d: %s", pos, err)
		}
	}

	beyond := block.Header.Clone()
	beyond.OutputMMRSize = 1 << 20
	_, err = tc.txHashSet.Snapshot(tc.store, beyond)
	if !ruleerrors.Is(err, ruleerrors.KindTxHashSetErr) {
		t.Fatalf("TestReadView: expected TxHashSetErr for a header beyond the txhashset, got %v", err)
	}
}

func identifierBytes(identifier *model.OutputIdentifier) ([]byte, error) {
	return serialization.ToBytes(identifier, serialization.CurrentProtocolVersion)
}

func TestHeaderExtension(t *testing.T) {
	tc, teardown := setupTxHashSet(t, "TestHeaderExtension")
	defer teardown()

	genesis := tc.params.GenesisBlock.Header
	var headers []*model.BlockHeader
	batch, err := tc.store.Batch()
	if err != nil {
		t.Fatalf("TestHeaderExtension: Batch: %s", err)
	}
	defer batch.Rollback()
	err = tc.txHashSet.HeaderExtending(batch, func(extension *HeaderExtension) error {
		err := extension.ApplyHeader(genesis)
		if err != nil {
			return err
		}
		prev := genesis
		for i := 0; i < 5; i++ {
			root, err := extension.Root()
			if err != nil {
				return err
			}
			header := prev.Clone()
			header.Height++
			header.PrevHash = *prev.Hash()
			header.PrevRoot = *root
			err = extension.ApplyHeader(header)
			if err != nil {
				return err
			}
			headers = append(headers, header)
			prev = header
		}
		return nil
	})
	if err != nil {
		t.Fatalf("TestHeaderExtension: applying headers: %s", err)
	}

	err = tc.txHashSet.HeaderExtending(batch, func(extension *HeaderExtension) error {
		extension.ForceRollback()
		err := extension.Rewind(headers[1])
		if err != nil {
			return err
		}
		hash, err := extension.HeaderHashAt(2)
		if err != nil {
			return err
		}
		if !hash.Equal(headers[1].Hash()) {
			return fmt.Errorf("expected header hash %s at height 2, got %s", headers[1].Hash(), hash)
		}
		bad := headers[2].Clone()
		bad.PrevRoot = hashes.Hash{}
		err = extension.ApplyHeader(bad)
		if !ruleerrors.Is(err, ruleerrors.KindInvalidRoot) {
			return fmt.Errorf("expected InvalidRoot, got %v", err)
		}
		return extension.ApplyHeader(headers[2])
	})
	if err != nil {
		t.Fatalf("TestHeaderExtension: %s", err)
	}
	if tc.txHashSet.HeaderMMRSize() != 10 {
		t.Fatalf("TestHeaderExtension: expected the rolled back extension to keep size 10, got %d",
			tc.txHashSet.HeaderMMRSize())
	}
}
