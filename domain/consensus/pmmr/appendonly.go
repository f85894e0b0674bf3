package pmmr

import (
	"os"

	"github.com/pkg/errors"
)

// appendOnlyFile is a file that only grows at its end. Appends and
// rewinds are staged in memory until flush.
type appendOnlyFile struct {
	path string
	file *os.File

	// flushedSize is the size of the file on disk. bufferStart is the
	// number of bytes on disk which are still part of the file after
	// staged rewinds, and buffer holds the staged appends.
	flushedSize int64
	bufferStart int64
	buffer      []byte
}

func openAppendOnlyFile(path string) (*appendOnlyFile, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	return &appendOnlyFile{
		path:        path,
		file:        file,
		flushedSize: info.Size(),
		bufferStart: info.Size(),
	}, nil
}

func (f *appendOnlyFile) size() int64 {
	return f.bufferStart + int64(len(f.buffer))
}

func (f *appendOnlyFile) append(data []byte) {
	f.buffer = append(f.buffer, data...)
}

func (f *appendOnlyFile) readAt(offset int64, length int) ([]byte, error) {
	if offset < 0 || offset+int64(length) > f.size() {
		return nil, errors.Wrapf(ErrNotFound, "%s: read of %d bytes at %d beyond size %d",
			f.path, length, offset, f.size())
	}
	data := make([]byte, length)
	fromFile := int64(0)
	if offset < f.bufferStart {
		fromFile = f.bufferStart - offset
		if fromFile > int64(length) {
			fromFile = int64(length)
		}
		_, err := f.file.ReadAt(data[:fromFile], offset)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %s at %d", f.path, offset)
		}
	}
	if fromFile < int64(length) {
		bufferOffset := offset + fromFile - f.bufferStart
		copy(data[fromFile:], f.buffer[bufferOffset:])
	}
	return data, nil
}

func (f *appendOnlyFile) rewind(size int64) {
	if size >= f.bufferStart {
		f.buffer = f.buffer[:size-f.bufferStart]
		return
	}
	f.bufferStart = size
	f.buffer = nil
}

func (f *appendOnlyFile) hasChanges() bool {
	return f.bufferStart != f.flushedSize || len(f.buffer) > 0
}

func (f *appendOnlyFile) flush() error {
	if f.bufferStart < f.flushedSize {
		err := f.file.Truncate(f.bufferStart)
		if err != nil {
			return errors.Wrapf(err, "failed to truncate %s", f.path)
		}
	}
	if len(f.buffer) > 0 {
		_, err := f.file.WriteAt(f.buffer, f.bufferStart)
		if err != nil {
			return errors.Wrapf(err, "failed to write %s", f.path)
		}
	}
	err := f.file.Sync()
	if err != nil {
		return errors.Wrapf(err, "failed to sync %s", f.path)
	}
	f.flushedSize = f.size()
	f.bufferStart = f.flushedSize
	f.buffer = nil
	return nil
}

func (f *appendOnlyFile) discard() {
	f.bufferStart = f.flushedSize
	f.buffer = nil
}

// replace swaps the file for the one at newPath. There must be no staged
// changes.
func (f *appendOnlyFile) replace(newPath string) error {
	err := f.file.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to close %s", f.path)
	}
	err = os.Rename(newPath, f.path)
	if err != nil {
		return errors.Wrapf(err, "failed to replace %s", f.path)
	}
	reopened, err := openAppendOnlyFile(f.path)
	if err != nil {
		return err
	}
	*f = *reopened
	return nil
}

func (f *appendOnlyFile) close() error {
	return errors.WithStack(f.file.Close())
}
