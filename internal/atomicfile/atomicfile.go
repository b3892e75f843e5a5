// Package atomicfile publishes files so readers see either the previous
// contents or the new contents, never a partial write.
package atomicfile

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Write stages data in a temporary file in the target's directory, syncs
// it, renames it over path and syncs the directory. Once the rename has
// succeeded the new contents are published, so a failed directory sync is
// logged rather than returned.
func Write(fs afero.Fs, path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "atomicfile: mkdir %s", dir)
	}

	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "atomicfile: create temp")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "atomicfile: write temp")
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "atomicfile: sync temp")
	}
	if err = tmp.Close(); err != nil {
		return eris.Wrap(err, "atomicfile: close temp")
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "atomicfile: rename to %s", path)
	}
	if serr := syncDir(fs, dir); serr != nil {
		zap.L().Warn("atomicfile: directory sync after rename", zap.String("path", path), zap.Error(serr))
	}
	return nil
}

func syncDir(fs afero.Fs, dir string) error {
	d, err := fs.Open(dir)
	if err != nil {
		return eris.Wrapf(err, "atomicfile: open dir %s", dir)
	}
	defer d.Close() //nolint:errcheck
	if err := d.Sync(); err != nil {
		return eris.Wrapf(err, "atomicfile: sync dir %s", dir)
	}
	return nil
}
