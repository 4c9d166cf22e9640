package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobMissing reports that a registry entry's bytes are absent from the
// blob store. The registry and the store are allowed to drift; the drift is
// only detected here, at access time.
var ErrBlobMissing = errors.New("blob missing")

// BlobStore persists uploaded bytes under their generated stored name.
type BlobStore interface {
	// Save writes the blob and returns the number of bytes written.
	Save(ctx context.Context, name string, r io.Reader) (int64, error)
	// Open streams the blob back, or ErrBlobMissing.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Stat returns the blob size, or ErrBlobMissing.
	Stat(ctx context.Context, name string) (int64, error)
	// Remove deletes the blob. A missing blob is not an error.
	Remove(ctx context.Context, name string) error
	// Check verifies the store is usable; called at startup and by /health.
	Check(ctx context.Context) error
}

// DiskStore keeps blobs as flat files in a content directory, created on
// demand.
type DiskStore struct {
	Dir string
}

func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{Dir: dir}
}

// path rejects names that could escape the content directory. Stored names
// are generated by the upload handler, but filenames also arrive from URL
// path parameters.
func (d *DiskStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(d.Dir, name), nil
}

func (d *DiskStore) Save(_ context.Context, name string, r io.Reader) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(p)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, err
	}
	return n, nil
}

func (d *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobMissing
		}
		return nil, err
	}
	return f, nil
}

func (d *DiskStore) Stat(_ context.Context, name string) (int64, error) {
	p, err := d.path(name)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrBlobMissing
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (d *DiskStore) Remove(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *DiskStore) Check(_ context.Context) error {
	return os.MkdirAll(d.Dir, 0o755)
}
