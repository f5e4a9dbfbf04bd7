package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooLarge is returned when an upload exceeds the spool limit
var ErrTooLarge = errors.New("audio: upload exceeds size limit")

// Spool copies r into a new temporary file in dir whose name ends in ext.
// The returned cleanup removes the file and is safe to call more than once.
// limit <= 0 disables the size check.
func Spool(r io.Reader, dir, ext string, limit int64) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "upload-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("audio: creating spool file: %w", err)
	}
	path = f.Name()
	cleanup = func() { _ = os.Remove(path) }

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		cleanup()
		return "", nil, fmt.Errorf("audio: spooling upload: %w", copyErr)
	case closeErr != nil:
		cleanup()
		return "", nil, fmt.Errorf("audio: closing spool file: %w", closeErr)
	case limit > 0 && n > limit:
		cleanup()
		return "", nil, ErrTooLarge
	}
	return path, cleanup, nil
}
