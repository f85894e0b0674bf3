package model

import (
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/hashes"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

// KernelFeatureKind tags the variants of KernelFeatures.
type KernelFeatureKind uint8

const (
	// KernelPlain is a regular transaction kernel carrying a fee.
	KernelPlain KernelFeatureKind = 0

	// KernelCoinbase is the kernel of a block reward.
	KernelCoinbase KernelFeatureKind = 1

	// KernelHeightLocked is only valid in blocks at or above its lock
	// height.
	KernelHeightLocked KernelFeatureKind = 2

	// KernelNoRecentDuplicate forbids another kernel with the same excess
	// within its relative height.
	KernelNoRecentDuplicate KernelFeatureKind = 3
)

// String returns the kind as a human-readable name.
func (k KernelFeatureKind) String() string {
	switch k {
	case KernelPlain:
		return "Plain"
	case KernelCoinbase:
		return "Coinbase"
	case KernelHeightLocked:
		return "HeightLocked"
	case KernelNoRecentDuplicate:
		return "NoRecentDuplicate"
	default:
		return "Unknown"
	}
}

// MaxNRDRelativeHeight is a week worth of blocks.
const MaxNRDRelativeHeight = 7 * 24 * 60

// KernelFeatures is a tagged variant. Fee is meaningful for every kind but
// Coinbase, LockHeight only for HeightLocked and RelativeHeight only for
// NoRecentDuplicate.
type KernelFeatures struct {
	Kind           KernelFeatureKind
	Fee            uint64
	LockHeight     uint64
	RelativeHeight uint16
}

// PlainFeatures returns Plain kernel features.
func PlainFeatures(fee uint64) KernelFeatures {
	return KernelFeatures{Kind: KernelPlain, Fee: fee}
}

// CoinbaseFeatures returns Coinbase kernel features.
func CoinbaseFeatures() KernelFeatures {
	return KernelFeatures{Kind: KernelCoinbase}
}

// HeightLockedFeatures returns HeightLocked kernel features.
func HeightLockedFeatures(fee uint64, lockHeight uint64) KernelFeatures {
	return KernelFeatures{Kind: KernelHeightLocked, Fee: fee, LockHeight: lockHeight}
}

// NoRecentDuplicateFeatures returns NoRecentDuplicate kernel features.
func NoRecentDuplicateFeatures(fee uint64, relativeHeight uint16) KernelFeatures {
	return KernelFeatures{Kind: KernelNoRecentDuplicate, Fee: fee, RelativeHeight: relativeHeight}
}

func (f *KernelFeatures) validate() error {
	switch f.Kind {
	case KernelPlain, KernelHeightLocked:
	case KernelCoinbase:
		if f.Fee != 0 {
			return errors.Wrapf(serialization.ErrMalformed, "coinbase kernel with fee %d", f.Fee)
		}
	case KernelNoRecentDuplicate:
		if f.RelativeHeight == 0 || f.RelativeHeight > MaxNRDRelativeHeight {
			return errors.Wrapf(serialization.ErrMalformed, "invalid NRD relative height %d", f.RelativeHeight)
		}
	default:
		return errors.Wrapf(serialization.ErrMalformed, "invalid kernel features %d", f.Kind)
	}
	return nil
}

// serializeVariable writes the kind followed by the fields the kind uses.
func (f *KernelFeatures) serializeVariable(w io.Writer) error {
	err := serialization.WriteElement(w, uint8(f.Kind))
	if err != nil {
		return err
	}
	switch f.Kind {
	case KernelPlain:
		return serialization.WriteElement(w, f.Fee)
	case KernelCoinbase:
		return nil
	case KernelHeightLocked:
		return serialization.WriteElements(w, f.Fee, f.LockHeight)
	case KernelNoRecentDuplicate:
		return serialization.WriteElements(w, f.Fee, f.RelativeHeight)
	}
	return errors.Errorf("unknown kernel features %d", f.Kind)
}

func deserializeVariableFeatures(r io.Reader) (KernelFeatures, error) {
	var kind uint8
	err := serialization.ReadElement(r, &kind)
	if err != nil {
		return KernelFeatures{}, err
	}
	features := KernelFeatures{Kind: KernelFeatureKind(kind)}
	switch features.Kind {
	case KernelPlain:
		err = serialization.ReadElement(r, &features.Fee)
	case KernelCoinbase:
	case KernelHeightLocked:
		err = serialization.ReadElements(r, &features.Fee, &features.LockHeight)
	case KernelNoRecentDuplicate:
		err = serialization.ReadElements(r, &features.Fee, &features.RelativeHeight)
	default:
		return KernelFeatures{}, errors.Wrapf(serialization.ErrMalformed, "invalid kernel features %d", kind)
	}
	if err != nil {
		return KernelFeatures{}, err
	}
	return features, features.validate()
}

// TxKernel proves a transaction balances: the excess is the public key
// the signature verifies against.
type TxKernel struct {
	Features  KernelFeatures
	Excess    secp.Commitment
	Signature secp.Signature
}

// Message returns the hash the kernel signature signs. It commits to the
// kernel features.
func (k *TxKernel) Message() *hashes.Hash {
	writer := hashes.NewHashWriter()
	err := k.Features.serializeVariable(writer)
	if err != nil {
		panic(errors.Wrap(err, "this should never happen. serializing into a hash writer can't fail"))
	}
	return writer.Finalize()
}

// Hash returns the hash of the serialized kernel.
func (k *TxKernel) Hash() *hashes.Hash {
	return serialization.HashOf(k)
}

// IsCoinbase returns whether this is a coinbase kernel.
func (k *TxKernel) IsCoinbase() bool {
	return k.Features.Kind == KernelCoinbase
}

// IsNRD returns whether this is a NoRecentDuplicate kernel.
func (k *TxKernel) IsNRD() bool {
	return k.Features.Kind == KernelNoRecentDuplicate
}

// Serialize writes the kernel. Protocol version 1 uses the fixed width
// layout of features, fee, lock height, excess and signature, which can't
// represent NoRecentDuplicate kernels.
func (k *TxKernel) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	if version.VariableSizeKernels() {
		err := k.Features.serializeVariable(w)
		if err != nil {
			return err
		}
	} else {
		if k.Features.Kind == KernelNoRecentDuplicate {
			return errors.Wrapf(serialization.ErrUnsupportedProtocolVersion,
				"NRD kernels can't be written with protocol version %d", version)
		}
		err := serialization.WriteElements(w, uint8(k.Features.Kind), k.Features.Fee, k.Features.LockHeight)
		if err != nil {
			return err
		}
	}
	_, err := w.Write(k.Excess[:])
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = w.Write(k.Signature[:])
	return errors.WithStack(err)
}

// DeserializeTxKernel reads a kernel written by Serialize with the same
// protocol version.
func DeserializeTxKernel(r io.Reader, version serialization.ProtocolVersion) (*TxKernel, error) {
	kernel := &TxKernel{}
	if version.VariableSizeKernels() {
		features, err := deserializeVariableFeatures(r)
		if err != nil {
			return nil, err
		}
		kernel.Features = features
	} else {
		var kind uint8
		err := serialization.ReadElements(r, &kind, &kernel.Features.Fee, &kernel.Features.LockHeight)
		if err != nil {
			return nil, err
		}
		kernel.Features.Kind = KernelFeatureKind(kind)
		if kernel.Features.Kind == KernelNoRecentDuplicate {
			return nil, errors.Wrapf(serialization.ErrMalformed, "NRD kernel in protocol version %d", version)
		}
		if kernel.Features.Kind != KernelHeightLocked && kernel.Features.LockHeight != 0 {
			return nil, errors.Wrapf(serialization.ErrMalformed, "lock height on a %s kernel", kernel.Features.Kind)
		}
		err = kernel.Features.validate()
		if err != nil {
			return nil, err
		}
	}
	err := serialization.ReadFixedBytes(r, kernel.Excess[:])
	if err != nil {
		return nil, err
	}
	err = serialization.ReadFixedBytes(r, kernel.Signature[:])
	if err != nil {
		return nil, err
	}
	return kernel, nil
}
