package artifact

import (
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Resources is the host-supplied, read-only bundle of executables.
type Resources interface {
	// List returns the names of all bundled resources.
	List() ([]string, error)

	// Open returns a byte stream for the named resource.
	Open(name string) (io.ReadCloser, error)
}

// FSResources exposes the top level of an fs.FS as Resources.
// Works with embed.FS as well as directories on disk.
type FSResources struct {
	fsys fs.FS
}

// NewFSResources wraps fsys.
func NewFSResources(fsys fs.FS) *FSResources {
	return &FSResources{fsys: fsys}
}

// NewDirResources serves resources from a directory on disk.
func NewDirResources(dir string) *FSResources {
	return NewFSResources(os.DirFS(dir))
}

// List implements Resources. A missing root yields an empty listing.
func (r *FSResources) List() ([]string, error) {
	entries, err := fs.ReadDir(r.fsys, ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing resources: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Open implements Resources.
func (r *FSResources) Open(name string) (io.ReadCloser, error) {
	f, err := r.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening resource %s: %w", name, err)
	}
	return f, nil
}
