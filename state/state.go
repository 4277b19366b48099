package state

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Tracker records which message keys have already been handled. Keys only
// ever accumulate; there is no removal.
type Tracker interface {
	AlreadyHandled(key string) bool
	MarkHandled(key string)
	Flush() error
	Len() int
}

// MemoryTracker is the in-memory set behind every tracker.
type MemoryTracker struct {
	mu      sync.RWMutex
	handled map[string]struct{}
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{handled: make(map[string]struct{})}
}

func (m *MemoryTracker) AlreadyHandled(key string) bool {
	if key == "" {
		return false
	}
	m.mu.RLock()
	_, ok := m.handled[key]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkHandled(key string) {
	if key == "" {
		return
	}
	m.mu.Lock()
	m.handled[key] = struct{}{}
	m.mu.Unlock()
}

func (m *MemoryTracker) Flush() error { return nil }

func (m *MemoryTracker) Len() int {
	m.mu.RLock()
	n := len(m.handled)
	m.mu.RUnlock()
	return n
}

func (m *MemoryTracker) keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.handled))
	for k := range m.handled {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// FileTracker persists handled message keys so future runs skip them. The
// file is a flat list of keys, one per line, read entirely at startup and
// rewritten entirely on Flush.
type FileTracker struct {
	*MemoryTracker
	path    string
	writeMu sync.Mutex
}

func NewFileTracker(stateDir string) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, "handled_messages.txt"),
	}
	if err := tracker.load(); err != nil {
		return nil, err
	}
	return tracker, nil
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}
		f.MarkHandled(key)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return nil
}

// Flush rewrites the whole file from the in-memory set. Writes go through a
// temp file and rename so a crash mid-flush cannot truncate the set.
func (f *FileTracker) Flush() error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	tmp := f.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}

	writer := bufio.NewWriter(file)
	for _, key := range f.keys() {
		if _, err := writer.WriteString(key + "\n"); err != nil {
			_ = file.Close()
			return fmt.Errorf("write state record: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("flush state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync state file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
