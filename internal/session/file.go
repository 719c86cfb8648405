package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FilePersister keeps each key in <dir>/<key>.json
type FilePersister struct {
	fs  afero.Fs
	dir string
}

// NewFilePersister stores records on the OS filesystem under dir
func NewFilePersister(dir string) *FilePersister {
	return NewFilePersisterFs(afero.NewOsFs(), dir)
}

// NewFilePersisterFs stores records on the given filesystem
func NewFilePersisterFs(fs afero.Fs, dir string) *FilePersister {
	return &FilePersister{fs: fs, dir: dir}
}

func (p *FilePersister) path(key string) string {
	return filepath.Join(p.dir, key+".json")
}

func (p *FilePersister) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(p.fs, p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p.path(key), err)
	}
	return data, nil
}

// Store writes through a temporary file so a crash never leaves half a record
func (p *FilePersister) Store(ctx context.Context, key string, data []byte) error {
	if err := p.fs.MkdirAll(p.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := p.path(key) + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := p.fs.Rename(tmp, p.path(key)); err != nil {
		return fmt.Errorf("failed to replace session: %w", err)
	}
	return nil
}

func (p *FilePersister) Delete(ctx context.Context, key string) error {
	err := p.fs.Remove(p.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
