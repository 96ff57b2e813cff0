// Package users stores user accounts as sealed records in a
// storage.Repository, with a secondary index from email to user ID.
package users

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmcleod/doorman/auth"
	"github.com/jmcleod/doorman/internal/util"
	"github.com/jmcleod/doorman/internal/uuid"
	"github.com/jmcleod/doorman/password"
	"github.com/jmcleod/doorman/storage"
)

const (
	userNamespace   = "__users"
	userRecordType  = "USER"
	emailRecordType = "EMAIL"
	userAADPrefix   = "user:"
	emailAADPrefix  = "email:"
)

// ErrConcurrentUpdate is returned when a user record changed between read and
// write. It matches auth.ErrStaleCredential.
var ErrConcurrentUpdate = fmt.Errorf("user record changed concurrently: %w", auth.ErrStaleCredential)

// Store implements auth.UserStore.
type Store struct {
	repo      storage.Repository
	hasher    *password.Hasher
	recordKey []byte
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for background maintenance such as digest
// upgrades.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

var _ auth.UserStore = (*Store)(nil)

type emailIndex struct {
	UserID string `json:"user_id"`
}

// NewStore returns a store sealing records with recordKey (32 bytes).
func NewStore(repo storage.Repository, hasher *password.Hasher, recordKey []byte, opts ...Option) (*Store, error) {
	if len(recordKey) != util.AESKeySize {
		return nil, fmt.Errorf("user record key must be %d bytes, got %d", util.AESKeySize, len(recordKey))
	}
	s := &Store{
		repo:      repo,
		hasher:    hasher,
		recordKey: util.CopyBytes(recordKey),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "users")
	return s, nil
}

// Create registers a new user. Invalid input and duplicate emails are
// returned as auth.ValidationErrors.
func (s *Store) Create(ctx context.Context, email, plain, confirmation string) (*auth.User, error) {
	errs := validateEmail(email)
	errs = append(errs, auth.ValidatePassword(plain, confirmation)...)
	if len(errs) > 0 {
		return nil, errs
	}

	digest, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	now := s.now().UTC()
	u := &auth.User{
		ID:             uuid.New(),
		Email:          email,
		PasswordDigest: digest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	lookup := emailLookupID(email)
	idx, err := s.seal(emailIndex{UserID: u.ID}, emailAADPrefix+lookup, 1)
	if err != nil {
		return nil, err
	}
	if err := s.repo.PutCAS(ctx, userNamespace, emailRecordType, lookup, 0, idx); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			var taken auth.ValidationErrors
			taken.Add("email", auth.MsgTaken)
			return nil, taken
		}
		return nil, fmt.Errorf("claiming email: %w", err)
	}

	if err := s.write(ctx, u, 0); err != nil {
		_ = s.repo.Delete(ctx, userNamespace, emailRecordType, lookup)
		return nil, err
	}
	return u, nil
}

// FindByEmail returns the user whose email is exactly email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	lookup := emailLookupID(email)
	env, err := s.repo.Get(ctx, userNamespace, emailRecordType, lookup)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("loading email index: %w", err)
	}
	var idx emailIndex
	if err := s.open(env, emailAADPrefix+lookup, &idx); err != nil {
		return nil, err
	}
	u, _, err := s.load(ctx, idx.UserID)
	if err != nil {
		return nil, err
	}
	// The index is keyed by a hash; confirm the exact address.
	if u.Email != email {
		return nil, auth.ErrUserNotFound
	}
	return u, nil
}

// FindByID returns auth.ErrUserNotFound for an unknown id.
func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	u, _, err := s.load(ctx, id)
	return u, err
}

// VerifyCredential reports whether plain matches u's digest. A nil u costs
// one dummy verification and reports false. After a match, a digest made
// with weaker parameters than the store's hasher is upgraded in place.
func (s *Store) VerifyCredential(ctx context.Context, u *auth.User, plain string) (bool, error) {
	if u == nil || u.PasswordDigest == "" {
		return s.hasher.VerifyDummy(plain), nil
	}
	ok, err := s.hasher.Verify(plain, u.PasswordDigest)
	if err != nil || !ok {
		return ok, err
	}
	if s.hasher.NeedsRehash(u.PasswordDigest) {
		if err := s.rehash(ctx, u, plain); err != nil {
			s.logger.WarnContext(ctx, "upgrading password digest failed", "user_id", u.ID, "error", err)
		}
	}
	return true, nil
}

// rehash rewrites u's digest with the hasher's current parameters. The
// credential version is left alone so outstanding reset tokens stay valid.
func (s *Store) rehash(ctx context.Context, u *auth.User, plain string) error {
	current, version, err := s.load(ctx, u.ID)
	if err != nil {
		return err
	}
	if current.PasswordDigest != u.PasswordDigest {
		return ErrConcurrentUpdate
	}
	digest, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	current.PasswordDigest = digest
	current.UpdatedAt = s.now().UTC()
	if err := s.write(ctx, current, version); err != nil {
		return err
	}
	*u = *current
	return nil
}

// UpdateCredential validates and stores a new password for u and bumps its
// credential version. u must carry the credential version it was loaded
// with; if the stored one has moved on, auth.ErrStaleCredential is returned.
// The write is a compare-and-swap against the record version read here, so
// a concurrent update fails with ErrConcurrentUpdate.
func (s *Store) UpdateCredential(ctx context.Context, u *auth.User, plain, confirmation string) error {
	if errs := auth.ValidatePassword(plain, confirmation); len(errs) > 0 {
		return errs
	}

	current, version, err := s.load(ctx, u.ID)
	if err != nil {
		return err
	}
	if current.CredentialVersion != u.CredentialVersion {
		return auth.ErrStaleCredential
	}
	digest, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	current.PasswordDigest = digest
	current.CredentialVersion++
	current.UpdatedAt = s.now().UTC()

	if err := s.write(ctx, current, version); err != nil {
		return err
	}
	*u = *current
	return nil
}

// List returns every stored user.
func (s *Store) List(ctx context.Context) ([]*auth.User, error) {
	ids, err := s.repo.List(ctx, userNamespace, userRecordType)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*auth.User, 0, len(ids))
	for _, id := range ids {
		u, _, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, id string) (*auth.User, uint64, error) {
	env, err := s.repo.Get(ctx, userNamespace, userRecordType, id)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, 0, auth.ErrUserNotFound
		}
		return nil, 0, fmt.Errorf("loading user: %w", err)
	}
	var u auth.User
	if err := s.open(env, userAADPrefix+id, &u); err != nil {
		return nil, 0, err
	}
	return &u, env.Version, nil
}

func (s *Store) write(ctx context.Context, u *auth.User, expectedVersion uint64) error {
	env, err := s.seal(u, userAADPrefix+u.ID, expectedVersion+1)
	if err != nil {
		return err
	}
	if err := s.repo.PutCAS(ctx, userNamespace, userRecordType, u.ID, expectedVersion, env); err != nil {
		if errors.Is(err, storage.ErrCASFailed) {
			return ErrConcurrentUpdate
		}
		return fmt.Errorf("storing user: %w", err)
	}
	return nil
}

func (s *Store) seal(v any, aad string, version uint64) (*storage.Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(data)
	return storage.SealRecord(s.recordKey, data, []byte(aad), version)
}

func (s *Store) open(env *storage.Envelope, aad string, v any) error {
	data, err := storage.OpenRecord(s.recordKey, env, []byte(aad))
	if err != nil {
		return fmt.Errorf("opening %s: %w", aad, err)
	}
	defer util.WipeBytes(data)
	return json.Unmarshal(data, v)
}

func emailLookupID(email string) string {
	sum := sha256.Sum256([]byte(email))
	return util.HexEncode(sum[:])
}

func validateEmail(email string) auth.ValidationErrors {
	var errs auth.ValidationErrors
	if strings.TrimSpace(email) == "" {
		errs.Add("email", auth.MsgBlank)
		return errs
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(email, " \t\r\n") {
		errs.Add("email", auth.MsgInvalid)
	}
	return errs
}
