package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/pkg/errors"
)

var errNoEncodingForType = errors.New("no encoding for type")

// ErrMalformed is wrapped by the errors returned for data that doesn't
// decode to a valid value.
var ErrMalformed = errors.New("malformed data")

// WriteElement writes element, which must be an integer, a bool or a hash,
// big-endian.
func WriteElement(w io.Writer, element interface{}) error {
	var encoded []byte
	switch e := element.(type) {
	case uint8:
		encoded = []byte{e}
	case bool:
		encoded = []byte{0}
		if e {
			encoded[0] = 1
		}
	case uint16:
		encoded = make([]byte, 2)
		binary.BigEndian.PutUint16(encoded, e)
	case uint32:
		encoded = make([]byte, 4)
		binary.BigEndian.PutUint32(encoded, e)
	case uint64:
		encoded = make([]byte, 8)
		binary.BigEndian.PutUint64(encoded, e)
	case int64:
		encoded = make([]byte, 8)
		binary.BigEndian.PutUint64(encoded, uint64(e))
	case hashes.Hash:
		encoded = e[:]
	case *hashes.Hash:
		encoded = e[:]
	default:
		return errors.Wrapf(errNoEncodingForType, "can't write %T", element)
	}
	_, err := w.Write(encoded)
	return errors.WithStack(err)
}

// WriteElements calls WriteElement on each of elements in order.
func WriteElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := WriteElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

func encodedSize(element interface{}) (int, bool) {
	switch element.(type) {
	case *uint8, *bool:
		return 1, true
	case *uint16:
		return 2, true
	case *uint32:
		return 4, true
	case *uint64, *int64:
		return 8, true
	case *hashes.Hash:
		return hashes.HashSize, true
	}
	return 0, false
}

// ReadElement reads into element, a pointer to one of the types
// WriteElement writes.
func ReadElement(r io.Reader, element interface{}) error {
	size, ok := encodedSize(element)
	if !ok {
		return errors.Wrapf(errNoEncodingForType, "can't read %T", element)
	}
	var scratch [hashes.HashSize]byte
	encoded := scratch[:size]
	_, err := io.ReadFull(r, encoded)
	if err != nil {
		return errors.WithStack(err)
	}

	switch e := element.(type) {
	case *uint8:
		*e = encoded[0]
	case *bool:
		if encoded[0] > 1 {
			return errors.Wrapf(ErrMalformed, "invalid bool value %d", encoded[0])
		}
		*e = encoded[0] == 1
	case *uint16:
		*e = binary.BigEndian.Uint16(encoded)
	case *uint32:
		*e = binary.BigEndian.Uint32(encoded)
	case *uint64:
		*e = binary.BigEndian.Uint64(encoded)
	case *int64:
		*e = int64(binary.BigEndian.Uint64(encoded))
	case *hashes.Hash:
		copy(e[:], encoded)
	}
	return nil
}

// ReadElements calls ReadElement on each of elements in order.
func ReadElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := ReadElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteVarInt writes val to w as an unsigned LEB128 varint.
func WriteVarInt(w io.Writer, val uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], val)
	_, err := w.Write(buf[:n])
	return errors.WithStack(err)
}

// ReadVarInt reads an unsigned LEB128 varint from r.
func ReadVarInt(r io.Reader) (uint64, error) {
	byteReader, ok := r.(io.ByteReader)
	if !ok {
		byteReader = &singleByteReader{r}
	}
	val, err := binary.ReadUvarint(byteReader)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, errors.WithStack(err)
		}
		return 0, errors.Wrap(ErrMalformed, err.Error())
	}
	return val, nil
}

// WriteVarBytes writes a varint length prefix followed by the bytes.
func WriteVarBytes(w io.Writer, data []byte) error {
	err := WriteVarInt(w, uint64(len(data)))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.WithStack(err)
}

// ReadVarBytes reads a length prefixed byte slice. maxAllowed bounds the
// length to protect against memory exhaustion from malformed input.
func ReadVarBytes(r io.Reader, maxAllowed uint64, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > maxAllowed {
		return nil, errors.Wrapf(ErrMalformed, "%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
	}
	data := make([]byte, count)
	_, err = io.ReadFull(r, data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// ReadFixedBytes reads exactly len(dst) bytes into dst.
func ReadFixedBytes(r io.Reader, dst []byte) error {
	_, err := io.ReadFull(r, dst)
	return errors.WithStack(err)
}

type singleByteReader struct {
	io.Reader
}

func (s *singleByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(s.Reader, b[:])
	return b[0], err
}

// NewReader returns a buffered reader that also implements io.ByteReader.
func NewReader(data []byte) *bufio.Reader {
	return bufio.NewReader(bytes.NewReader(data))
}
