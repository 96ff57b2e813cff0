package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmcleod/doorman/internal/util"
	"github.com/jmcleod/doorman/storage"
)

const (
	sessionNamespace      = "__sessions"
	sessionRecordType     = "SESSION"
	sessionKeyType        = "SESSION_KEY"
	sessionKeyID          = "current"
	sessionAADPrefix      = "session:"
	sessionKeyWrappingAAD = "doorman:session_key:v1"
	cleanupInterval       = 5 * time.Minute
)

// PersistentStore stores sessions in a storage.Repository, encrypted
// at rest using AES-256-GCM. Sessions survive server restarts.
//
// The session encryption key is itself sealed with an externally-provided
// wrapping key before being stored, so the repository alone cannot
// recover session data.
type PersistentStore struct {
	repo        storage.Repository
	key         []byte
	wrappingKey []byte
	idleTimeout time.Duration
	logger      *slog.Logger
	stopOnce    sync.Once
	stopCh      chan struct{}
}

var _ Store = (*PersistentStore)(nil)

// NewPersistentStore creates a session store backed by repo. wrappingKey
// (32 bytes) seals the session encryption key and is never stored.
// idleTimeout of 0 disables idle timeout checking.
func NewPersistentStore(ctx context.Context, repo storage.Repository, idleTimeout time.Duration, wrappingKey []byte, logger *slog.Logger) (*PersistentStore, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("wrapping key must be exactly %d bytes, got %d", util.AESKeySize, len(wrappingKey))
	}
	if logger == nil {
		logger = slog.Default()
	}
	wk := util.CopyBytes(wrappingKey)

	key, err := loadOrCreateKey(ctx, repo, wk)
	if err != nil {
		util.WipeBytes(wk)
		return nil, err
	}
	s := &PersistentStore{
		repo:        repo,
		key:         key,
		wrappingKey: wk,
		idleTimeout: idleTimeout,
		logger:      logger.With("component", "sessions"),
		stopCh:      make(chan struct{}),
	}
	go s.cleanupLoop()
	return s, nil
}

// Close stops the background cleanup goroutine and wipes key material.
func (s *PersistentStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		util.WipeBytes(s.key)
		util.WipeBytes(s.wrappingKey)
	})
}

func (s *PersistentStore) Get(ctx context.Context, token string) (Session, bool) {
	sess, err := s.load(ctx, token)
	if err != nil {
		if !storage.IsNotFound(err) {
			s.logger.Warn("loading session failed", "error", err)
		}
		return Session{}, false
	}
	if !sess.Live(time.Now(), s.idleTimeout) {
		_ = s.Delete(ctx, token)
		return Session{}, false
	}
	return sess, true
}

func (s *PersistentStore) Put(ctx context.Context, token string, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	defer util.WipeBytes(data)
	env, err := storage.SealRecord(s.key, data, []byte(sessionAADPrefix+token))
	if err != nil {
		return fmt.Errorf("sealing session: %w", err)
	}
	return s.repo.Put(ctx, sessionNamespace, sessionRecordType, token, env)
}

func (s *PersistentStore) Delete(ctx context.Context, token string) error {
	err := s.repo.Delete(ctx, sessionNamespace, sessionRecordType, token)
	if storage.IsNotFound(err) {
		return nil
	}
	return err
}

func (s *PersistentStore) load(ctx context.Context, token string) (Session, error) {
	env, err := s.repo.Get(ctx, sessionNamespace, sessionRecordType, token)
	if err != nil {
		return Session{}, err
	}
	data, err := storage.OpenRecord(s.key, env, []byte(sessionAADPrefix+token))
	if err != nil {
		return Session{}, fmt.Errorf("opening session: %w", err)
	}
	defer util.WipeBytes(data)
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decoding session: %w", err)
	}
	return sess, nil
}

func (s *PersistentStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := s.Sweep(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("session sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Debug("swept sessions", "removed", n)
			}
		}
	}
}

// Sweep removes expired, idle and unreadable sessions and returns how many
// were removed.
func (s *PersistentStore) Sweep(ctx context.Context) (int, error) {
	tokens, err := s.repo.List(ctx, sessionNamespace, sessionRecordType)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	now := time.Now()
	removed := 0
	for _, token := range tokens {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sess, err := s.load(ctx, token)
		if storage.IsNotFound(err) {
			continue
		}
		if err == nil && sess.Live(now, s.idleTimeout) {
			continue
		}
		if err := s.Delete(ctx, token); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// loadOrCreateKey unseals the session encryption key with the wrapping key,
// generating and persisting a new one if none exists. If the wrapping key
// has changed, a new key is generated and existing sessions become
// unreadable.
func loadOrCreateKey(ctx context.Context, repo storage.Repository, wrappingKey []byte) ([]byte, error) {
	aad := []byte(sessionKeyWrappingAAD)

	env, err := repo.Get(ctx, sessionNamespace, sessionKeyType, sessionKeyID)
	switch {
	case err == nil:
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
	case !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrNamespaceNotFound):
		return nil, fmt.Errorf("loading session key: %w", err)
	}

	key, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing new session key: %w", err)
	}
	if err := repo.Put(ctx, sessionNamespace, sessionKeyType, sessionKeyID, sealed); err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("persisting session key: %w", err)
	}
	return key, nil
}
