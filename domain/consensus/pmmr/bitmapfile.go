package pmmr

import (
	"bufio"
	"os"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"
)

func readBitmap(path string) (*roaring.Bitmap, error) {
	bitmap := roaring.New()
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return bitmap, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.Size() == 0 {
		return bitmap, nil
	}
	_, err = bitmap.ReadFrom(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read bitmap %s", path)
	}
	return bitmap, nil
}

// writeBitmap persists bitmap to path through a temporary file.
func writeBitmap(path string, bitmap *roaring.Bitmap) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", tmpPath)
	}
	writer := bufio.NewWriter(file)
	_, err = bitmap.WriteTo(writer)
	if err == nil {
		err = writer.Flush()
	}
	if err == nil {
		err = file.Sync()
	}
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write bitmap %s", path)
	}
	return errors.Wrapf(os.Rename(tmpPath, path), "failed to replace %s", path)
}
