package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// stateEncMode produces deterministic output so identical state yields an
// identical image.
var stateEncMode cbor.EncMode

func init() {
	var err error
	stateEncMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create state CBOR encoder mode: %v", err))
	}
}

// FileBackend stores state as a CBOR image file.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend creates a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Save writes the state image, replacing the file atomically.
func (b *FileBackend) Save(state *State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := stateEncMode.Marshal(state)
	if err != nil {
		return err
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

// Load reads the state image.
// Returns nil, nil if the file doesn't exist.
func (b *FileBackend) Load() (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &State{}
	if err := cbor.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode state image: %w", err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("state image version %d is newer than supported %d", state.Version, StateVersion)
	}
	return state, nil
}

// Clear removes the state image.
func (b *FileBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := os.Remove(b.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Compile-time interface satisfaction check.
var _ Backend = (*FileBackend)(nil)
