// Package file provides file-based persistence for the flow record.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Each key is one JSON file under the records directory.
type Persistence struct {
	root string
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) persistence.Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (fp *Persistence) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(fp.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}

	return data, nil
}

// Put writes through a temp file and rename so a crash never leaves half a record.
func (fp *Persistence) Put(_ context.Context, key string, value []byte) error {
	dir := fp.dir()

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}

	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write record %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record %s: %w", key, err)
	}

	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to set record permissions %s: %w", key, err)
	}

	return os.Rename(tmp.Name(), fp.path(key))
}

func (fp *Persistence) Delete(_ context.Context, key string) error {
	err := os.Remove(fp.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) dir() string {
	return filepath.Join(fp.root, "records")
}

func (fp *Persistence) path(key string) string {
	return filepath.Join(fp.dir(), key+".json")
}
