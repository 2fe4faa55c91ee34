// Package ioutil provides the write-temp-then-fsync-then-rename helper
// shared by every component that persists a small durable artifact
// (the validator keystore, the state manifest and blob): a crash mid-write
// must never leave a partially-written file observable at the final path.
package ioutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AtomicWrite writes data to path via a temp file in the same directory,
// fsynced and then renamed into place, so a reader never observes a
// partially-written file at path.
func AtomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.Wrap(err, "creating parent dir")
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return errors.Wrap(err, "opening temp file")
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return errors.Wrap(err, "writing temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "fsyncing temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "renaming temp file into place")
}
