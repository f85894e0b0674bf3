package serialization

import (
	"github.com/pkg/errors"
)

// ProtocolVersion selects between the encodings of optional fields.
type ProtocolVersion uint32

const (
	// ProtocolVersion1 encodes kernels with fixed width fields.
	ProtocolVersion1 ProtocolVersion = 1

	// ProtocolVersion2 introduced variable size kernel features.
	ProtocolVersion2 ProtocolVersion = 2

	// ProtocolVersion3 is kept for compatibility, it encodes exactly like
	// ProtocolVersion2.
	ProtocolVersion3 ProtocolVersion = 3

	// CurrentProtocolVersion is the protocol version used by this node.
	CurrentProtocolVersion ProtocolVersion = 4
)

// ErrUnsupportedProtocolVersion is returned when encoding or decoding with a
// version this node doesn't know.
var ErrUnsupportedProtocolVersion = errors.New("unsupported protocol version")

// Validate returns an error if the version is unknown.
func (v ProtocolVersion) Validate() error {
	if v < ProtocolVersion1 || v > CurrentProtocolVersion {
		return errors.Wrapf(ErrUnsupportedProtocolVersion, "version %d", v)
	}
	return nil
}

// VariableSizeKernels returns whether kernel features are serialized in
// their variable size form.
func (v ProtocolVersion) VariableSizeKernels() bool {
	return v >= ProtocolVersion2
}
