package pmmr

import (
	"reflect"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

func leafData(i int) []byte {
	return []byte{byte(i), byte(i >> 8), 0xaa}
}

func pushLeaves(t *testing.T, p *PMMR, from, to int) {
	for i := from; i < to; i++ {
		pos, err := p.Push(leafData(i))
		if err != nil {
			t.Fatalf("Push %d: %s", i, err)
		}
		if pos != LeafPos(uint64(i)) {
			t.Fatalf("Push %d: got position %d, want %d", i, pos, LeafPos(uint64(i)))
		}
	}
}

func TestPositions(t *testing.T) {
	heights := []uint64{0, 0, 1, 0, 0, 1, 2, 0, 0, 1, 0, 0, 1, 2, 3, 0}
	for i, expected := range heights {
		pos := uint64(i + 1)
		if Height(pos) != expected {
			t.Fatalf("TestPositions: Height(%d) = %d, want %d", pos, Height(pos), expected)
		}
	}

	peaksTests := []struct {
		size     uint64
		expected []uint64
	}{
		{size: 0, expected: nil},
		{size: 1, expected: []uint64{1}},
		{size: 2, expected: nil},
		{size: 3, expected: []uint64{3}},
		{size: 4, expected: []uint64{3, 4}},
		{size: 5, expected: nil},
		{size: 7, expected: []uint64{7}},
		{size: 8, expected: []uint64{7, 8}},
		{size: 10, expected: []uint64{7, 10}},
		{size: 11, expected: []uint64{7, 10, 11}},
	}
	for i, test := range peaksTests {
		peaks := Peaks(test.size)
		if !reflect.DeepEqual(peaks, test.expected) {
			t.Fatalf("TestPositions: test %d: Peaks(%d) = %v, want %v", i, test.size, peaks, test.expected)
		}
	}

	nLeavesTests := map[uint64]uint64{0: 0, 1: 1, 2: 2, 3: 2, 4: 3, 5: 4, 7: 4, 8: 5, 10: 6, 11: 7}
	for size, expected := range nLeavesTests {
		if NLeaves(size) != expected {
			t.Fatalf("TestPositions: NLeaves(%d) = %d, want %d", size, NLeaves(size), expected)
		}
	}

	leafPositions := []uint64{1, 2, 4, 5, 8, 9, 11, 12, 16}
	for i, pos := range leafPositions {
		if LeafPos(uint64(i)) != pos {
			t.Fatalf("TestPositions: LeafPos(%d) = %d, want %d", i, LeafPos(uint64(i)), pos)
		}
		if LeafIndex(pos) != uint64(i) {
			t.Fatalf("TestPositions: LeafIndex(%d) = %d, want %d", pos, LeafIndex(pos), i)
		}
		if !IsLeaf(pos) {
			t.Fatalf("TestPositions: %d should be a leaf", pos)
		}
	}

	familyTests := []struct {
		pos, parent, sibling uint64
		isLeft               bool
	}{
		{pos: 1, parent: 3, sibling: 2, isLeft: true},
		{pos: 2, parent: 3, sibling: 1, isLeft: false},
		{pos: 3, parent: 7, sibling: 6, isLeft: true},
		{pos: 4, parent: 6, sibling: 5, isLeft: true},
		{pos: 6, parent: 7, sibling: 3, isLeft: false},
		{pos: 7, parent: 15, sibling: 14, isLeft: true},
		{pos: 10, parent: 14, sibling: 13, isLeft: true},
	}
	for _, test := range familyTests {
		parent, sibling := Family(test.pos)
		if parent != test.parent || sibling != test.sibling {
			t.Fatalf("TestPositions: Family(%d) = (%d, %d), want (%d, %d)",
				test.pos, parent, sibling, test.parent, test.sibling)
		}
		if IsLeftSibling(test.pos) != test.isLeft {
			t.Fatalf("TestPositions: IsLeftSibling(%d) should be %t", test.pos, test.isLeft)
		}
	}
}

func TestRoot(t *testing.T) {
	p := New(NewVecBackend())
	root, err := p.Root()
	if err != nil {
		t.Fatalf("TestRoot: Root: %s", err)
	}
	if !root.Equal(&hashes.ZeroHash) {
		t.Fatalf("TestRoot: empty root should be the zero hash, got %s", root)
	}

	h1 := LeafHash(1, leafData(0))
	h2 := LeafHash(2, leafData(1))
	h3 := pairHash(2, h1, h2)
	h4 := LeafHash(4, leafData(2))

	tests := []struct {
		leaves       int
		expectedSize uint64
		expectedRoot *hashes.Hash
	}{
		{leaves: 1, expectedSize: 1, expectedRoot: h1},
		{leaves: 2, expectedSize: 3, expectedRoot: h3},
		{leaves: 3, expectedSize: 4, expectedRoot: pairHash(4, h3, h4)},
	}
	for i, test := range tests {
		p := New(NewVecBackend())
		pushLeaves(t, p, 0, test.leaves)
		if p.Size() != test.expectedSize {
			t.Fatalf("TestRoot: test %d: size %d, want %d", i, p.Size(), test.expectedSize)
		}
		root, err := p.Root()
		if err != nil {
			t.Fatalf("TestRoot: test %d: Root: %s", i, err)
		}
		if !root.Equal(test.expectedRoot) {
			t.Fatalf("TestRoot: test %d: root %s, want %s", i, root, test.expectedRoot)
		}
		err = p.Validate()
		if err != nil {
			t.Fatalf("TestRoot: test %d: Validate: %s", i, err)
		}
	}
}

func TestMerkleProof(t *testing.T) {
	for leaves := 1; leaves <= 20; leaves++ {
		p := New(NewVecBackend())
		pushLeaves(t, p, 0, leaves)
		root, err := p.Root()
		if err != nil {
			t.Fatalf("TestMerkleProof: Root: %s", err)
		}
		for i := 0; i < leaves; i++ {
			pos := LeafPos(uint64(i))
			proof, err := p.MerkleProof(pos)
			if err != nil {
				t.Fatalf("TestMerkleProof: %d leaves: MerkleProof(%d): %s", leaves, pos, err)
			}
			err = proof.Verify(root, leafData(i), pos)
			if err != nil {
				t.Fatalf("TestMerkleProof: %d leaves: Verify(%d): %s", leaves, pos, err)
			}
			err = proof.Verify(root, leafData(i+1), pos)
			if err == nil {
				t.Fatalf("TestMerkleProof: %d leaves: proof of %d verified other data", leaves, pos)
			}
		}
	}

	p := New(NewVecBackend())
	pushLeaves(t, p, 0, 5)
	_, err := p.MerkleProof(3)
	if err == nil {
		t.Fatalf("TestMerkleProof: expected an error for a non-leaf position")
	}
}

func TestPruneAndRewind(t *testing.T) {
	p := New(NewVecBackend())
	pushLeaves(t, p, 0, 5)
	sizeAt5 := p.Size()
	rootAt5, err := p.Root()
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Root: %s", err)
	}

	pruned, err := p.Prune(2)
	if err != nil || !pruned {
		t.Fatalf("TestPruneAndRewind: Prune(2): %t, %v", pruned, err)
	}
	pruned, err = p.Prune(2)
	if err != nil || pruned {
		t.Fatalf("TestPruneAndRewind: second Prune(2) should report false, got %t, %v", pruned, err)
	}
	_, err = p.Prune(3)
	if err == nil {
		t.Fatalf("TestPruneAndRewind: pruning a parent should fail")
	}
	_, err = p.GetData(2)
	if !IsNotFoundError(err) {
		t.Fatalf("TestPruneAndRewind: pruned data should not be found, got %v", err)
	}
	_, err = p.GetHash(2)
	if !IsNotFoundError(err) {
		t.Fatalf("TestPruneAndRewind: pruned hash should not be found, got %v", err)
	}
	root, err := p.Root()
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Root: %s", err)
	}
	if !root.Equal(rootAt5) {
		t.Fatalf("TestPruneAndRewind: pruning changed the root")
	}

	pushLeaves(t, p, 5, 7)
	_, err = p.Prune(4)
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Prune(4): %s", err)
	}

	err = p.Rewind(sizeAt5, roaring.BitmapOf(4))
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Rewind: %s", err)
	}
	if p.Size() != sizeAt5 {
		t.Fatalf("TestPruneAndRewind: size %d after rewind, want %d", p.Size(), sizeAt5)
	}
	data, err := p.GetData(4)
	if err != nil || !reflect.DeepEqual(data, leafData(2)) {
		t.Fatalf("TestPruneAndRewind: leaf 4 should be restored, got %x, %v", data, err)
	}
	_, err = p.GetData(2)
	if !IsNotFoundError(err) {
		t.Fatalf("TestPruneAndRewind: leaf 2 should stay pruned")
	}
	root, err = p.Root()
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Root: %s", err)
	}
	if !root.Equal(rootAt5) {
		t.Fatalf("TestPruneAndRewind: root after rewind differs")
	}
	if !reflect.DeepEqual(p.LeafPositions(), []uint64{1, 4, 5, 8}) {
		t.Fatalf("TestPruneAndRewind: unexpected leaf positions %v", p.LeafPositions())
	}

	pushLeaves(t, p, 5, 7)
	err = p.Rewind(9, nil)
	if err != nil {
		t.Fatalf("TestPruneAndRewind: Rewind(9): %s", err)
	}
	if p.Size() != 10 {
		t.Fatalf("TestPruneAndRewind: rewinding to 9 should complete the mountain at 10, got %d", p.Size())
	}
}

func TestReadonlyPMMR(t *testing.T) {
	backend := NewVecBackend()
	p := New(backend)
	pushLeaves(t, p, 0, 6)
	size := p.Size()
	expectedRoot, err := p.Root()
	if err != nil {
		t.Fatalf("TestReadonlyPMMR: Root: %s", err)
	}
	pushLeaves(t, p, 6, 11)

	view := NewReadonly(backend, size)
	root, err := view.Root()
	if err != nil {
		t.Fatalf("TestReadonlyPMMR: Root: %s", err)
	}
	if !root.Equal(expectedRoot) {
		t.Fatalf("TestReadonlyPMMR: view root %s, want %s", root, expectedRoot)
	}
	_, err = view.GetData(LeafPos(8))
	if !IsNotFoundError(err) {
		t.Fatalf("TestReadonlyPMMR: leaves beyond the view should not be found")
	}
	proof, err := view.MerkleProof(LeafPos(2))
	if err != nil {
		t.Fatalf("TestReadonlyPMMR: MerkleProof: %s", err)
	}
	err = proof.Verify(expectedRoot, leafData(2), LeafPos(2))
	if err != nil {
		t.Fatalf("TestReadonlyPMMR: Verify: %s", err)
	}
}

func TestPruneList(t *testing.T) {
	list := &PruneList{bitmap: roaring.New()}
	list.add(1, 100)
	list.add(2, 100)
	list.add(5, 100)
	list.buildCaches()

	if list.Len() != 2 || !list.IsPrunedRoot(3) || !list.IsPrunedRoot(5) {
		t.Fatalf("TestPruneList: expected roots 3 and 5, got %v", list.bitmap.ToArray())
	}
	if !list.IsCompacted(1) || !list.IsCompacted(2) || list.IsCompacted(3) || list.IsCompacted(5) {
		t.Fatalf("TestPruneList: wrong compacted positions")
	}
	if !list.IsPruned(3) || list.IsPruned(4) {
		t.Fatalf("TestPruneList: wrong pruned positions")
	}
	if list.Shift(4) != 2 || list.LeafShift(4) != 2 || list.LeafShift(8) != 3 {
		t.Fatalf("TestPruneList: wrong shifts %d %d %d", list.Shift(4), list.LeafShift(4), list.LeafShift(8))
	}

	limited := &PruneList{bitmap: roaring.New()}
	limited.add(1, 2)
	limited.add(2, 2)
	limited.buildCaches()
	if limited.Len() != 2 {
		t.Fatalf("TestPruneList: parents beyond the cutoff must not be merged")
	}
}
