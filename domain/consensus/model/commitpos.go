package model

import (
	"io"

	"github.com/mwcnet/mwcd/domain/consensus/secp"
	"github.com/mwcnet/mwcd/domain/consensus/utils/serialization"
	"github.com/pkg/errors"
)

const maxSpentJournalEntries = maxBodyElements

// CommitPos locates an output or kernel: its MMR position and the height
// of the block which added it.
type CommitPos struct {
	Pos    uint64
	Height uint64
}

// Serialize writes the position then the height.
func (c *CommitPos) Serialize(w io.Writer, _ serialization.ProtocolVersion) error {
	return serialization.WriteElements(w, c.Pos, c.Height)
}

// DeserializeCommitPos reads a CommitPos written by Serialize.
func DeserializeCommitPos(r io.Reader) (*CommitPos, error) {
	pos := &CommitPos{}
	err := serialization.ReadElements(r, &pos.Pos, &pos.Height)
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// SpentOutput records an output spent by a block.
type SpentOutput struct {
	Commitment secp.Commitment
	CommitPos
}

// SpentJournal is the list of outputs spent by a block, in input order.
type SpentJournal []SpentOutput

// Positions returns the output MMR positions of the journal.
func (j SpentJournal) Positions() []uint64 {
	positions := make([]uint64, len(j))
	for i := range j {
		positions[i] = j[i].Pos
	}
	return positions
}

// Serialize writes the number of entries followed by the entries.
func (j SpentJournal) Serialize(w io.Writer, version serialization.ProtocolVersion) error {
	err := serialization.WriteVarInt(w, uint64(len(j)))
	if err != nil {
		return err
	}
	for i := range j {
		_, err = w.Write(j[i].Commitment[:])
		if err != nil {
			return errors.WithStack(err)
		}
		err = j[i].CommitPos.Serialize(w, version)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeserializeSpentJournal reads a SpentJournal written by Serialize.
func DeserializeSpentJournal(r io.Reader) (SpentJournal, error) {
	count, err := serialization.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > maxSpentJournalEntries {
		return nil, errors.Wrapf(serialization.ErrMalformed, "spent journal of %d entries", count)
	}
	journal := make(SpentJournal, count)
	for i := range journal {
		err = serialization.ReadFixedBytes(r, journal[i].Commitment[:])
		if err != nil {
			return nil, err
		}
		pos, err := DeserializeCommitPos(r)
		if err != nil {
			return nil, err
		}
		journal[i].CommitPos = *pos
	}
	return journal, nil
}
