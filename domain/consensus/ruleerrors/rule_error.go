package ruleerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies the class of a chain error. Callers branch on the kind,
// never on the error text.
type Kind int

// These constants are used to identify a specific RuleError kind.
const (
	// KindUnfit indicates the block is not fit for processing right now,
	// e.g. it is already known.
	KindUnfit Kind = iota

	// KindOrphan indicates the block's parent is unknown.
	KindOrphan

	// KindDifficultyTooLow indicates the proof of work doesn't meet the
	// claimed difficulty.
	KindDifficultyTooLow

	// KindWrongTotalDifficulty indicates the total difficulty doesn't match
	// the value computed from the difficulty window.
	KindWrongTotalDifficulty

	// KindLowEdgeBits indicates the cuckoo graph is smaller than allowed.
	KindLowEdgeBits

	// KindInvalidHash indicates a hash that doesn't match its content.
	KindInvalidHash

	// KindInvalidScaling indicates a wrong secondary PoW scaling factor.
	KindInvalidScaling

	// KindInvalidPow indicates the cuckoo cycle doesn't verify.
	KindInvalidPow

	// KindOldBlock indicates a block below the cut-through horizon.
	KindOldBlock

	// KindInvalidBlockProof indicates the PoW proof is malformed.
	KindInvalidBlockProof

	// KindInvalidBlockTime indicates the timestamp is too far in the future.
	KindInvalidBlockTime

	// KindInvalidBlockHeight indicates the height isn't the previous height
	// plus one.
	KindInvalidBlockHeight

	// KindInvalidRoot indicates one of the MMR roots doesn't match.
	KindInvalidRoot

	// KindInvalidMMRSize indicates one of the MMR sizes doesn't match.
	KindInvalidMMRSize

	// KindAlreadySpent indicates an input spends an output which is not
	// unspent.
	KindAlreadySpent

	// KindDuplicateOutputID indicates a new output duplicates an unspent
	// commitment.
	KindDuplicateOutputID

	// KindImmatureCoinbase indicates a coinbase output spent before
	// maturity.
	KindImmatureCoinbase

	// KindMerkleProof indicates an invalid merkle proof.
	KindMerkleProof

	// KindInvalidBlockVersion indicates an unsupported header version.
	KindInvalidBlockVersion

	// KindInvalidTxHashSet indicates an invalid txhashset state.
	KindInvalidTxHashSet

	// KindTxLockHeight indicates a height locked kernel used too early.
	KindTxLockHeight

	// KindNRDRelativeHeight indicates a duplicate NRD kernel within its
	// relative height.
	KindNRDRelativeHeight

	// KindTransaction wraps transaction validation errors.
	KindTransaction

	// KindBlock wraps block validation errors.
	KindBlock

	// KindCommitted wraps commitment sum errors.
	KindCommitted

	// KindKeychain wraps key derivation errors.
	KindKeychain

	// KindSecp wraps secp256k1 errors.
	KindSecp

	// KindOutputNotFound indicates an unknown output commitment.
	KindOutputNotFound

	// KindRangeproofNotFound indicates a missing range proof.
	KindRangeproofNotFound

	// KindTxKernelNotFound indicates an unknown kernel.
	KindTxKernelNotFound

	// KindOutputSpent indicates the requested output was spent.
	KindOutputSpent

	// KindStoreErr wraps key-value store failures.
	KindStoreErr

	// KindFileReadErr wraps file access failures.
	KindFileReadErr

	// KindSerErr wraps serialization failures.
	KindSerErr

	// KindTxHashSetErr wraps txhashset failures.
	KindTxHashSetErr

	// KindGenesisBlockRequired indicates an empty store without genesis.
	KindGenesisBlockRequired

	// KindOther is anything else.
	KindOther

	// KindStopped indicates the server is shutting down.
	KindStopped

	// KindBitmap wraps bitmap failures.
	KindBitmap

	// KindSyncError indicates a sync failure.
	KindSyncError
)

var kindStrings = map[Kind]string{
	KindUnfit:                "ErrUnfit",
	KindOrphan:               "ErrOrphan",
	KindDifficultyTooLow:     "ErrDifficultyTooLow",
	KindWrongTotalDifficulty: "ErrWrongTotalDifficulty",
	KindLowEdgeBits:          "ErrLowEdgeBits",
	KindInvalidHash:          "ErrInvalidHash",
	KindInvalidScaling:       "ErrInvalidScaling",
	KindInvalidPow:           "ErrInvalidPow",
	KindOldBlock:             "ErrOldBlock",
	KindInvalidBlockProof:    "ErrInvalidBlockProof",
	KindInvalidBlockTime:     "ErrInvalidBlockTime",
	KindInvalidBlockHeight:   "ErrInvalidBlockHeight",
	KindInvalidRoot:          "ErrInvalidRoot",
	KindInvalidMMRSize:       "ErrInvalidMMRSize",
	KindAlreadySpent:         "ErrAlreadySpent",
	KindDuplicateOutputID:    "ErrDuplicateOutputId",
	KindImmatureCoinbase:     "ErrImmatureCoinbase",
	KindMerkleProof:          "ErrMerkleProof",
	KindInvalidBlockVersion:  "ErrInvalidBlockVersion",
	KindInvalidTxHashSet:     "ErrInvalidTxHashSet",
	KindTxLockHeight:         "ErrTxLockHeight",
	KindNRDRelativeHeight:    "ErrNRDRelativeHeight",
	KindTransaction:          "ErrTransaction",
	KindBlock:                "ErrBlock",
	KindCommitted:            "ErrCommitted",
	KindKeychain:             "ErrKeychain",
	KindSecp:                 "ErrSecp",
	KindOutputNotFound:       "ErrOutputNotFound",
	KindRangeproofNotFound:   "ErrRangeproofNotFound",
	KindTxKernelNotFound:     "ErrTxKernelNotFound",
	KindOutputSpent:          "ErrOutputSpent",
	KindStoreErr:             "ErrStoreErr",
	KindFileReadErr:          "ErrFileReadErr",
	KindSerErr:               "ErrSerErr",
	KindTxHashSetErr:         "ErrTxHashSetErr",
	KindGenesisBlockRequired: "ErrGenesisBlockRequired",
	KindOther:                "ErrOther",
	KindStopped:              "ErrStopped",
	KindBitmap:               "ErrBitmap",
	KindSyncError:            "ErrSyncError",
}

// String returns the Kind as a human-readable name.
func (k Kind) String() string {
	if s, ok := kindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Kind (%d)", int(k))
}

// IsBadData returns whether errors of this kind mean the data itself is
// invalid, so that whoever sent it may be punished.
func (k Kind) IsBadData() bool {
	switch k {
	case KindUnfit, KindOrphan, KindStoreErr, KindFileReadErr, KindSerErr,
		KindTxHashSetErr, KindGenesisBlockRequired, KindOther, KindStopped,
		KindBitmap, KindSyncError, KindOutputNotFound, KindRangeproofNotFound,
		KindTxKernelNotFound, KindOutputSpent:
		return false
	default:
		return true
	}
}

// RuleError identifies a chain error of a specific kind. It is used to
// indicate that processing of a block, header or query failed. The caller
// can use KindOf to determine the failure class.
type RuleError struct {
	kind    Kind
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	message := e.kind.String()
	if e.message != "" {
		message += ": " + e.message
	}
	if e.inner != nil {
		message += ": " + e.inner.Error()
	}
	return message
}

// Kind returns the kind of the error.
func (e RuleError) Kind() Kind {
	return e.kind
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

// New creates a RuleError of the given kind. The returned error carries the
// stack of the caller.
func New(kind Kind, format string, args ...interface{}) error {
	return errors.WithStack(RuleError{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
	})
}

// Wrap wraps inner into a RuleError of the given kind. It returns nil if
// inner is nil. If inner already is a RuleError, it is returned as is, so
// the kind assigned closest to the failure wins.
func Wrap(kind Kind, inner error, message string) error {
	if inner == nil {
		return nil
	}
	if _, ok := KindOf(inner); ok {
		return inner
	}
	return errors.WithStack(RuleError{
		kind:    kind,
		message: message,
		inner:   inner,
	})
}

// Wrapf is like Wrap with a formatted message.
func Wrapf(kind Kind, inner error, format string, args ...interface{}) error {
	return Wrap(kind, inner, fmt.Sprintf(format, args...))
}

// KindOf extracts the kind of the first RuleError in err's chain.
func KindOf(err error) (Kind, bool) {
	var ruleErr RuleError
	if !errors.As(err, &ruleErr) {
		return 0, false
	}
	return ruleErr.kind, true
}

// Is returns whether err is a RuleError of the given kind.
func Is(err error, kind Kind) bool {
	errKind, ok := KindOf(err)
	return ok && errKind == kind
}

// IsBadData returns whether err signifies invalid data. Errors which are
// not RuleErrors are never bad data.
func IsBadData(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind.IsBadData()
}
