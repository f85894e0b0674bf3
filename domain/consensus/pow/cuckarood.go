package pow

import (
	"github.com/pkg/errors"
)

// CuckaroodContext verifies cuckaroo-d cycles, the secondary (ASIC
// resistant) PoW family. Edges are directed by the parity of their nonce
// and a cycle must alternate directions.
type CuckaroodContext struct {
	params   cuckooParams
	nodeMask uint64
}

// NewCuckaroodContext returns a cuckaroo-d context for graphs of
// 2^edgeBits edges.
func NewCuckaroodContext(edgeBits uint8, proofSize int) *CuckaroodContext {
	params := newCuckooParams(edgeBits, proofSize)
	return &CuckaroodContext{
		params:   params,
		nodeMask: params.edgeMask >> 1,
	}
}

// SetHeaderNonce implements Context.
func (c *CuckaroodContext) SetHeaderNonce(header []byte, nonce uint64) {
	c.params.setHeaderNonce(header, nonce)
}

func (c *CuckaroodContext) endpoints(nonce uint64) (u uint64, v uint64) {
	edge := siphashBlock(&c.params.keys, nonce, 25, false)
	return edge & c.nodeMask, (edge >> 32) & c.nodeMask
}

// Verify implements Context.
func (c *CuckaroodContext) Verify(proof *Proof) error {
	err := c.params.checkNonces(proof)
	if err != nil {
		return err
	}
	size := c.params.proofSize
	uvs := make([]uint64, 2*size)
	var ndir [2]int
	var xor0, xor1 uint64
	for _, nonce := range proof.Nonces {
		dir := int(nonce & 1)
		if ndir[dir] >= size/2 {
			return errors.Wrap(ErrVerification, "edges not balanced")
		}
		u, v := c.endpoints(nonce)
		idx := 4*ndir[dir] + 2*dir
		uvs[idx] = u
		uvs[idx+1] = v
		xor0 ^= u
		xor1 ^= v
		ndir[dir]++
	}
	if xor0|xor1 != 0 {
		return errors.Wrap(ErrVerification, "endpoints don't match up")
	}

	n := 0
	i := 0
	for {
		j := i
		for k := (i % 4) ^ 2; k < 2*size; k += 4 {
			if uvs[k] == uvs[i] {
				if j != i {
					return errors.Wrap(ErrVerification, "branch in cycle")
				}
				j = k
			}
		}
		if j == i {
			return errors.Wrap(ErrVerification, "cycle dead ends")
		}
		i = j ^ 1
		n++
		if i == 0 {
			break
		}
	}
	if n != size {
		return errors.Wrap(ErrVerification, "cycle too short")
	}
	return nil
}

// FindCycles implements Context. Even nonces are edges from u to v, odd
// nonces from v to u, so every directed cycle alternates directions.
func (c *CuckaroodContext) FindCycles() []*Proof {
	graph := newCycleGraph()
	for nonce := uint64(0); nonce < c.params.numEdges; nonce++ {
		u, v := c.endpoints(nonce)
		if nonce&1 == 0 {
			graph.addEdge(nonce, uNode(u), vNode(v))
		} else {
			graph.addEdge(nonce, vNode(v), uNode(u))
		}
	}
	return graph.findCycles(c, c.params.edgeBits, c.params.proofSize, 1)
}
