package bbolt

import (
	"context"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"

	"github.com/jmcleod/doorman/storage"
	"github.com/jmcleod/doorman/storage/storagetest"
)

func newTestDB(t *testing.T) *bbolt.DB {
	t.Helper()
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "doorman-test.db"), 0600, nil)
	if err != nil {
		t.Fatalf("could not open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBBoltStorage(t *testing.T) {
	storagetest.RunRepositoryTests(t, NewRepository(newTestDB(t)))
}

func TestBBoltListIgnoresShorterKeys(t *testing.T) {
	s := NewRepository(newTestDB(t))
	ctx := context.Background()
	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: make([]byte, 12), Ciphertext: []byte("c")}

	if err := s.Put(ctx, "users", "Z", "", env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(ctx, "users", "USER", "u1", env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	ids, err := s.List(ctx, "users", "USER")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("expected [u1], got %v", ids)
	}
}

func TestNewRepositoryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file-test.db")

	repo, err := NewRepositoryFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewRepositoryFromFile failed: %v", err)
	}
	defer repo.Close()

	if repo.db == nil {
		t.Error("repo.db is nil")
	}

	_, err = NewRepositoryFromFile("/nonexistent/path/to/db", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
