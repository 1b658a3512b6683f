package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/folio-dev/folio/pkg/schema"
)

// Persistence handles the disk I/O for a collection file.
type Persistence struct {
	mu sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence initializes a persistence handler.
func NewPersistence() *Persistence {
	return &Persistence{}
}

// Load reads and parses the whole collection file at path.
func (p *Persistence) Load(path string) ([]schema.Collection, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrIO, path, err)
	}

	collections, err := decodeCollections(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}
	return collections, nil
}

// Save writes the full sequence to path atomically.
// The parent directory is created if it does not exist yet. Nil tags, keypoints
// and text_fields are replaced with empty sequences in place before encoding.
func (p *Persistence) Save(path string, collections []schema.Collection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if collections == nil {
		collections = []schema.Collection{}
	}
	schema.Normalize(collections)

	bytes, err := json.MarshalIndent(collections, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", ErrIO, path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating directory for %s: %v", ErrIO, path, err)
	}

	// Write next to the target so the rename stays on one filesystem. The temp
	// name is unique, so another process saving the same file cannot interleave.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %v", ErrIO, path, err)
	}
	tempPath := tmp.Name()
	if err := writeTemp(tmp, bytes); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: writing %s: %v", ErrIO, tempPath, err)
	}

	// Readers see either the old file or the new one, never a truncated one.
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("%w: replacing %s: %v", ErrIO, path, err)
	}
	return nil
}

func writeTemp(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func decodeCollections(content []byte) ([]schema.Collection, error) {
	var collections []schema.Collection
	if err := json.Unmarshal(content, &collections); err != nil {
		return nil, err
	}
	// A literal "null" is not a collection array.
	if collections == nil {
		return nil, fmt.Errorf("expected a JSON array")
	}
	return collections, nil
}
