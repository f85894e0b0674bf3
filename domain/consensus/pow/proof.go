package pow

import (
	"io"
	"math"
	"math/bits"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

// MaxProofSize bounds the number of nonces a serialized proof may carry.
const MaxProofSize = 64

// Proof is a cuckoo cycle solution: the graph size and the sorted edge
// nonces that form the cycle.
type Proof struct {
	EdgeBits uint8
	Nonces   []uint64
}

// IsSecondary returns whether the proof belongs to the secondary
// (ASIC resistant) PoW family.
func (p *Proof) IsSecondary() bool {
	return p.EdgeBits == SecondPoWEdgeBits
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	nonces := make([]uint64, len(p.Nonces))
	copy(nonces, p.Nonces)
	return &Proof{EdgeBits: p.EdgeBits, Nonces: nonces}
}

// packNonces packs every nonce in EdgeBits bits, least significant bit
// first.
func (p *Proof) packNonces() []byte {
	totalBits := len(p.Nonces) * int(p.EdgeBits)
	packed := make([]byte, (totalBits+7)/8)
	for n, nonce := range p.Nonces {
		for bit := 0; bit < int(p.EdgeBits); bit++ {
			if nonce>>uint(bit)&1 == 1 {
				position := n*int(p.EdgeBits) + bit
				packed[position/8] |= 1 << uint(position%8)
			}
		}
	}
	return packed
}

func unpackNonces(packed []byte, edgeBits uint8, proofSize int) []uint64 {
	nonces := make([]uint64, proofSize)
	for n := range nonces {
		for bit := 0; bit < int(edgeBits); bit++ {
			position := n*int(edgeBits) + bit
			if packed[position/8]>>uint(position%8)&1 == 1 {
				nonces[n] |= 1 << uint(bit)
			}
		}
	}
	return nonces
}

// Hash returns the blake2b hash of the packed proof nonces.
func (p *Proof) Hash() *hashes.Hash {
	return hashes.HashData(p.packNonces())
}

// ToDifficulty returns the difficulty the proof satisfies given the
// scaling factor of its graph: (scaling << 64) / hash, saturated at the
// maximum uint64.
func (p *Proof) ToDifficulty(scaling uint64) uint64 {
	hashValue := p.Hash().ToU64()
	if hashValue == 0 {
		hashValue = 1
	}
	if scaling >= hashValue {
		return math.MaxUint64
	}
	quotient, _ := bits.Div64(scaling, 0, hashValue)
	return quotient
}

// Serialize writes the edge bits, the number of nonces and the packed
// nonces.
func (p *Proof) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	if len(p.Nonces) > MaxProofSize {
		return errors.Errorf("proof has %d nonces, more than the maximum %d", len(p.Nonces), MaxProofSize)
	}
	err := serialization.WriteElements(w, p.EdgeBits, uint8(len(p.Nonces)))
	if err != nil {
		return err
	}
	_, err = w.Write(p.packNonces())
	return errors.WithStack(err)
}

// DeserializeProof reads a proof written by Serialize.
func DeserializeProof(r io.Reader) (*Proof, error) {
	var edgeBits, proofSize uint8
	err := serialization.ReadElements(r, &edgeBits, &proofSize)
	if err != nil {
		return nil, err
	}
	if edgeBits == 0 || edgeBits > 63 {
		return nil, errors.Wrapf(serialization.ErrMalformed, "invalid edge bits %d", edgeBits)
	}
	if proofSize > MaxProofSize {
		return nil, errors.Wrapf(serialization.ErrMalformed, "invalid proof size %d", proofSize)
	}
	packed := make([]byte, (int(proofSize)*int(edgeBits)+7)/8)
	err = serialization.ReadFixedBytes(r, packed)
	if err != nil {
		return nil, err
	}
	return &Proof{EdgeBits: edgeBits, Nonces: unpackNonces(packed, edgeBits, int(proofSize))}, nil
}
