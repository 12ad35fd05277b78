package db

import (
	"path/filepath"
	"testing"
)

func TestPrefixIteration(t *testing.T) {
	l, err := NewMemLevelDB()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	for _, k := range []string{"commit:3:1", "commit:3:2", "progress:3:1"} {
		if err := l.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	it := l.NewIterator([]byte("commit:"))
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 commit keys, got %d", n)
	}
}

func TestGetMissingAndDelete(t *testing.T) {
	l, err := NewLevelDB(filepath.Join(t.TempDir(), "journal"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	if _, err := l.Get([]byte("absent")); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := l.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, err := l.Get([]byte("k")); err != nil || string(v) != "v" {
		t.Fatalf("expected stored value, got %q, %v", v, err)
	}
	if err := l.Delete([]byte("k")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := l.Delete([]byte("k")); err != nil {
		t.Fatalf("delete missing key: %v", err)
	}
	if _, err := l.Get([]byte("k")); !IsNotFound(err) {
		t.Fatalf("expected key to be gone, got %v", err)
	}
}
