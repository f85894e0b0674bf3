package serialization

import (
	"bytes"
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

// Serializable is implemented by every type with a canonical encoding.
type Serializable interface {
	Serialize(w io.Writer, version ProtocolVersion) error
}

// ToBytes serializes s with the given protocol version.
func ToBytes(s Serializable, version ProtocolVersion) ([]byte, error) {
	err := version.Validate()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err = s.Serialize(&buf, version)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HashOf returns the blake2b hash of the canonical serialization of s.
// Hashes are always computed over the current protocol version encoding.
func HashOf(s Serializable) *hashes.Hash {
	writer := hashes.NewHashWriter()
	err := s.Serialize(writer, CurrentProtocolVersion)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. serializing into a hash writer can't fail"))
	}
	return writer.Finalize()
}
