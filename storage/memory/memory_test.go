package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/jmcleod/doorman/storage"
	"github.com/jmcleod/doorman/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.RunRepositoryTests(t, NewRepository())
}

func TestMemoryRepositoryReturnsClones(t *testing.T) {
	repo := NewRepository()
	ctx := context.Background()
	env := &storage.Envelope{Ver: 1, Scheme: "aes256gcm", Nonce: []byte("nonce1234567"), Ciphertext: []byte("ciphertext")}
	if err := repo.Put(ctx, "users", "USER", "u1", env); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, _ := repo.Get(ctx, "users", "USER", "u1")
	got.Nonce[0] = 'X'
	got2, _ := repo.Get(ctx, "users", "USER", "u1")
	if got2.Nonce[0] == 'X' {
		t.Error("memory repository should return clones of envelopes")
	}

	env.Ciphertext[0] = 'X'
	got3, _ := repo.Get(ctx, "users", "USER", "u1")
	if got3.Ciphertext[0] == 'X' {
		t.Error("memory repository should store clones of envelopes")
	}
}

func TestMemoryRepositoryCanceledContext(t *testing.T) {
	repo := NewRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Get(ctx, "users", "USER", "u1")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
