package serialization

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
)

func TestElementsRoundTrip(t *testing.T) {
	hash := hashes.Hash{1, 2, 3}
	var buf bytes.Buffer
	err := WriteElements(&buf, uint8(7), true, uint16(0x0102), uint32(0x01020304),
		uint64(1<<40), int64(-5), hash)
	if err != nil {
		t.Fatalf("TestElementsRoundTrip: WriteElements: %s", err)
	}
	if !bytes.Equal(buf.Bytes()[2:4], []byte{0x01, 0x02}) {
		t.Fatalf("TestElementsRoundTrip: expected big endian encoding, got %x", buf.Bytes()[2:4])
	}

	var (
		u8    uint8
		b     bool
		u16   uint16
		u32   uint32
		u64   uint64
		i64   int64
		hash2 hashes.Hash
	)
	err = ReadElements(&buf, &u8, &b, &u16, &u32, &u64, &i64, &hash2)
	if err != nil {
		t.Fatalf("TestElementsRoundTrip: ReadElements: %s", err)
	}
	got := []interface{}{u8, b, u16, u32, u64, i64, hash2}
	expected := []interface{}{uint8(7), true, uint16(0x0102), uint32(0x01020304), uint64(1 << 40), int64(-5), hash}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("TestElementsRoundTrip: expected %v, got %v", expected, got)
	}
}

func TestVarBytes(t *testing.T) {
	tests := []int{0, 1, 127, 128, 675, 20000}
	for i, size := range tests {
		data := bytes.Repeat([]byte{0xaa}, size)
		var buf bytes.Buffer
		err := WriteVarBytes(&buf, data)
		if err != nil {
			t.Fatalf("TestVarBytes: test #%d: %s", i, err)
		}
		got, err := ReadVarBytes(&buf, 20000, "data")
		if err != nil {
			t.Fatalf("TestVarBytes: test #%d: %s", i, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("TestVarBytes: test #%d: round trip mismatch", i)
		}
	}

	var buf bytes.Buffer
	_ = WriteVarBytes(&buf, make([]byte, 10))
	_, err := ReadVarBytes(&buf, 9, "data")
	if err == nil {
		t.Fatalf("TestVarBytes: expected an error for an oversized field")
	}
}

func TestProtocolVersionValidate(t *testing.T) {
	tests := []struct {
		version ProtocolVersion
		valid   bool
	}{
		{0, false},
		{ProtocolVersion1, true},
		{ProtocolVersion2, true},
		{CurrentProtocolVersion, true},
		{CurrentProtocolVersion + 1, false},
	}
	for i, test := range tests {
		err := test.version.Validate()
		if (err == nil) != test.valid {
			t.Errorf("TestProtocolVersionValidate: test #%d: version %d, got err %v", i, test.version, err)
		}
	}
}
