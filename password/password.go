// Package password hashes and verifies user passwords with argon2id,
// encoding results in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
package password

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"

	"github.com/jmcleod/doorman/internal/util"
)

const (
	algorithmID = "argon2id"

	minMemoryKiB   uint32 = 8 * 1024
	minTime        uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// ErrInvalidHash is returned when a stored digest is not a parseable argon2id PHC string.
var ErrInvalidHash = errors.New("invalid password hash")

// Params controls the argon2id cost. Memory is in KiB.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the cost used for new digests.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Params) validate() error {
	switch {
	case p.Memory < minMemoryKiB:
		return fmt.Errorf("argon2 memory must be at least %d KiB", minMemoryKiB)
	case p.Time < minTime:
		return fmt.Errorf("argon2 time must be at least %d", minTime)
	case p.Parallelism < minParallelism:
		return fmt.Errorf("argon2 parallelism must be at least %d", minParallelism)
	case p.SaltLength < minSaltLength:
		return fmt.Errorf("salt length must be at least %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return fmt.Errorf("key length must be at least %d", minKeyLength)
	}
	return nil
}

// Hasher produces and checks argon2id digests. It is safe for concurrent use.
type Hasher struct {
	params Params

	dummyOnce sync.Once
	dummy     string
	dummyErr  error
}

// NewHasher returns a hasher for p, rejecting parameters below the minimums.
func NewHasher(p Params) (*Hasher, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Hasher{params: p}, nil
}

// Hash returns the PHC-encoded digest of the NFKD-normalized password.
func (h *Hasher) Hash(plain string) (string, error) {
	salt, err := util.RandomBytes(int(h.params.SaltLength))
	if err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(util.Normalize(plain)), salt,
		h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches digest. The cost parameters are read
// from the digest so older digests keep verifying after DefaultParams changes.
func (h *Hasher) Verify(plain, digest string) (bool, error) {
	parsed, err := parse(digest)
	if err != nil {
		return false, err
	}

	key := argon2.IDKey([]byte(util.Normalize(plain)), parsed.salt,
		parsed.params.Time, parsed.params.Memory, parsed.params.Parallelism, uint32(len(parsed.key)))

	return subtle.ConstantTimeCompare(key, parsed.key) == 1, nil
}

// VerifyDummy does the work of Verify against a digest of a random password
// and always reports false. It lets callers spend the same time on a lookup
// miss as on a wrong password.
func (h *Hasher) VerifyDummy(plain string) bool {
	h.dummyOnce.Do(func() {
		secret, err := util.RandomBytes(32)
		if err != nil {
			h.dummyErr = err
			return
		}
		h.dummy, h.dummyErr = h.Hash(util.HexEncode(secret))
	})
	if h.dummyErr == nil {
		_, _ = h.Verify(plain, h.dummy)
	}
	return false
}

// NeedsRehash reports whether digest was produced with weaker parameters than the hasher's.
func (h *Hasher) NeedsRehash(digest string) bool {
	parsed, err := parse(digest)
	if err != nil {
		return true
	}
	p := parsed.params
	return p.Memory < h.params.Memory ||
		p.Time < h.params.Time ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(parsed.key)) != h.params.KeyLength
}

type phc struct {
	params Params
	salt   []byte
	key    []byte
}

func parse(digest string) (*phc, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: malformed PHC string", ErrInvalidHash)
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, fmt.Errorf("%w: bad version segment", ErrInvalidHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrInvalidHash, version)
	}

	var out phc
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, kv)
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, kv)
		}
		switch name {
		case "m":
			out.params.Memory = uint32(n)
		case "t":
			out.params.Time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism out of range", ErrInvalidHash)
			}
			out.params.Parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
	}
	if out.params.Memory == 0 || out.params.Time == 0 || out.params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: missing cost parameters", ErrInvalidHash)
	}

	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}
	return &out, nil
}
