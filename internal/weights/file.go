package weights

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Save writes a weight file to path. The file is written fresh in the target
// directory and renamed into place, so a reader never observes a partial
// write and an existing file is never mutated in place.
func Save(path string, topo *Topology, values [][]float32) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "saving weights to %s", path)
	}

	if err := Encode(tmp, topo, values); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "saving weights to %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "saving weights to %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "saving weights to %s", path)
	}
	return nil
}

// Load reads and fully validates a weight file. Either every tensor decodes
// and shape-checks, or an error is returned and no tensors are; the file is
// closed on every path.
func Load(path string, topo *Topology) ([][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading weights")
	}
	defer f.Close()

	values, err := Decode(f, topo)
	if err != nil {
		return nil, errors.Wrapf(err, "loading weights from %s", path)
	}
	return values, nil
}
