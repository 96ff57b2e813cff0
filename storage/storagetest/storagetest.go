// Package storagetest holds the conformance suite every storage.Repository
// backend runs in its own tests.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/jmcleod/doorman/storage"
)

func envelope(ciphertext string, version uint64) *storage.Envelope {
	return &storage.Envelope{
		Ver:        1,
		Scheme:     "aes256gcm",
		Nonce:      make([]byte, 12),
		Ciphertext: []byte(ciphertext),
		Version:    version,
	}
}

// RunRepositoryTests exercises the storage.Repository contract against repo.
// The repository must start empty.
func RunRepositoryTests(t *testing.T, repo storage.Repository) {
	t.Helper()
	ctx := context.Background()
	const ns = "users"

	t.Run("PutGet", func(t *testing.T) {
		env := envelope("cipher", 1)
		if err := repo.Put(ctx, ns, "USER", "u1", env); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := repo.Get(ctx, ns, "USER", "u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Ver != env.Ver || got.Scheme != env.Scheme || got.Version != env.Version {
			t.Errorf("Get returned wrong envelope: %+v", got)
		}
		if !bytes.Equal(got.Ciphertext, env.Ciphertext) {
			t.Errorf("expected ciphertext %q, got %q", env.Ciphertext, got.Ciphertext)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := repo.Get(ctx, "no-such-namespace", "USER", "u1")
		if !storage.IsNotFound(err) {
			t.Errorf("expected not found for missing namespace, got %v", err)
		}
		_, err = repo.Get(ctx, ns, "USER", "no-such-record")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing record, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		if err := repo.Put(ctx, ns, "USER", "u2", envelope("a", 1)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := repo.Put(ctx, ns, "EMAIL", "e1", envelope("b", 1)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		ids, err := repo.List(ctx, ns, "USER")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		sort.Strings(ids)
		if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
			t.Errorf("expected [u1 u2], got %v", ids)
		}

		ids, err = repo.List(ctx, "no-such-namespace", "USER")
		if err != nil {
			t.Errorf("expected no error listing a missing namespace, got %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("expected 0 ids, got %d", len(ids))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := repo.Put(ctx, ns, "SESSION", "s1", envelope("s", 0)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := repo.Delete(ctx, ns, "SESSION", "s1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, ns, "SESSION", "s1"); !storage.IsNotFound(err) {
			t.Errorf("expected deleted record to be gone, got %v", err)
		}
		if err := repo.Delete(ctx, ns, "SESSION", "s1"); !storage.IsNotFound(err) {
			t.Errorf("expected not found deleting twice, got %v", err)
		}
	})

	t.Run("PutCAS create-only", func(t *testing.T) {
		if err := repo.PutCAS(ctx, ns, "EMAIL", "cas1", 0, envelope("v1", 1)); err != nil {
			t.Fatalf("PutCAS (new) failed: %v", err)
		}
		if err := repo.PutCAS(ctx, ns, "EMAIL", "cas1", 0, envelope("v1", 1)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS version match", func(t *testing.T) {
		if err := repo.Put(ctx, ns, "USER", "cas2", envelope("v1", 1)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := repo.PutCAS(ctx, ns, "USER", "cas2", 1, envelope("v2", 2)); err != nil {
			t.Fatalf("PutCAS (version match) failed: %v", err)
		}
		got, err := repo.Get(ctx, ns, "USER", "cas2")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Version != 2 {
			t.Errorf("expected version 2, got %d", got.Version)
		}
	})

	t.Run("PutCAS version mismatch", func(t *testing.T) {
		if err := repo.Put(ctx, ns, "USER", "cas3", envelope("v5", 5)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := repo.PutCAS(ctx, ns, "USER", "cas3", 3, envelope("v6", 6)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed, got %v", err)
		}
	})

	t.Run("PutCAS non-zero on missing record", func(t *testing.T) {
		if err := repo.PutCAS(ctx, ns, "USER", "cas-missing", 1, envelope("v1", 1)); !errors.Is(err, storage.ErrCASFailed) {
			t.Errorf("expected ErrCASFailed for non-zero version on missing record, got %v", err)
		}
	})
}
