// SPDX-License-Identifier: MIT
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	applog "instruments/internal/log"
	"instruments/internal/params"
)

// ErrNotFound is returned by Store.Get for a missing key.
var ErrNotFound = errors.New("control: key not found")

// Store is an external key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// StoreKey returns the key one instrument's values are saved under.
func StoreKey(docID string, kind params.Kind, index int) string {
	return fmt.Sprintf("%s_%s_%d", docID, kind, index)
}

// Save writes the raw values of every added instrument to s, one entry
// per instrument keyed by StoreKey.
func (c *Controller) Save(ctx context.Context, s Store, docID string) error {
	for kind := range params.Kind(params.NumKinds) {
		for index := range c.Count(kind) {
			values, err := c.rawValues(kind, index)
			if err != nil {
				return err
			}
			data, err := json.Marshal(values)
			if err != nil {
				return fmt.Errorf("encoding %s %d: %w", kind, index, err)
			}
			if err := s.Set(ctx, StoreKey(docID, kind, index), data); err != nil {
				return fmt.Errorf("saving %s %d: %w", kind, index, err)
			}
		}
	}
	return nil
}

// Load restores every added instrument's raw values from s and sends one
// snapshot, also when nothing was saved under docID. Instruments without a
// saved entry keep their values; unknown names in an entry are skipped.
func (c *Controller) Load(ctx context.Context, s Store, docID string) error {
	loaded := 0
	for kind := range params.Kind(params.NumKinds) {
		for index := range c.Count(kind) {
			data, err := s.Get(ctx, StoreKey(docID, kind, index))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("loading %s %d: %w", kind, index, err)
			}
			var values map[string]float64
			if err := json.Unmarshal(data, &values); err != nil {
				return fmt.Errorf("decoding %s %d: %w", kind, index, err)
			}

			c.mu.Lock()
			for name, raw := range values {
				if err := c.setRawLocked(kind, index, name, raw); err != nil {
					applog.Warnf("Controller: Skipping saved %s %d value %q: %v", kind, index, name, err)
				}
			}
			c.mu.Unlock()
			loaded++
		}
	}
	applog.Debugf("Controller: Loaded %d instruments for %s", loaded, docID)
	return c.Enqueue(ctx)
}

func (c *Controller) rawValues(kind params.Kind, index int) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.layout.Keys(kind)
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		off, err := c.layout.Offset(kind, index, k)
		if err != nil {
			return nil, err
		}
		out[k] = float64(c.global[off])
	}
	return out, nil
}

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore keeps one JSON file per key in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store dir %s: %w", dir, err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("control: invalid store key %q", key)
	}
	return filepath.Join(f.Dir, key+".json"), nil
}

// Get reads key, returning ErrNotFound if it was never set.
func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

// Set writes key through a temporary file so readers never see a partial
// value.
func (f *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
