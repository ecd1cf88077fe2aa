// internal/session/fragment.go
//
// Shareable link fragment carrying the generation ceiling, e.g. "#3".
// Written whenever the ceiling changes; read once at startup when no snapshot exists.

package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Link stores the current fragment somewhere a user can share it.
type Link interface {
	ReadFragment() (string, error)
	WriteFragment(fragment string) error
}

// FormatFragment renders the fragment for maxGen.
func FormatFragment(maxGen int) string {
	return strconv.Itoa(maxGen)
}

// ParseFragment extracts the generation ceiling from a fragment.
// It returns 0 when the first segment is not a positive integer.
func ParseFragment(fragment string) int {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	first, _, _ := strings.Cut(fragment, "/")
	n, err := strconv.Atoi(first)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

// LinkFile keeps the fragment in a small text file.
type LinkFile struct {
	Path string
}

// ReadFragment returns the file contents, or "" when the file does not exist.
func (l LinkFile) ReadFragment() (string, error) {
	b, err := os.ReadFile(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read link %s: %w", l.Path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// WriteFragment replaces the file contents with "#<fragment>".
func (l LinkFile) WriteFragment(fragment string) error {
	if dir := filepath.Dir(l.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(l.Path, []byte("#"+fragment+"\n"), 0o644); err != nil {
		return fmt.Errorf("write link %s: %w", l.Path, err)
	}
	return nil
}

// MemoryLink holds the fragment in memory.
type MemoryLink struct {
	mu       sync.Mutex
	fragment string
}

func (m *MemoryLink) ReadFragment() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fragment, nil
}

func (m *MemoryLink) WriteFragment(fragment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fragment = fragment
	return nil
}
