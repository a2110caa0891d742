// Package testutil provides shared helpers for tests: deterministic
// content, temp files, and an in-process fake portal.
package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// Data returns n pseudo-random bytes that are the same for equal seeds.
func Data(seed int64, n int) []byte {
	b := make([]byte, n)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // deterministic test data
	_, _ = rng.Read(b)
	return b
}

// WriteFile writes data to a new file in a temp directory owned by t and
// returns its path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// CountEntries returns the number of entries in dir, or -1 if it cannot be
// read.
func CountEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return -1
	}
	return len(entries)
}
