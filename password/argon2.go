package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

// Params holds Argon2id tuning parameters.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the recommended Argon2id parameters for interactive
// credential verification.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies passwords using Argon2id in PHC string format.
// A fresh random salt is drawn for every Hash call, so hashing the same
// password twice never yields the same stored form.
type Argon2 struct {
	params Params
}

// NewArgon2 validates the parameters and returns a ready hasher.
func NewArgon2(p Params) (*Argon2, error) {
	if p.Memory < minMemoryKB {
		return nil, errors.New("argon2 memory below minimum")
	}
	if p.Time < minTimeCost {
		return nil, errors.New("argon2 time cost below minimum")
	}
	if p.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism below minimum")
	}
	if p.SaltLength < minSaltLength {
		return nil, errors.New("argon2 salt length below minimum")
	}
	if p.KeyLength < minKeyLength {
		return nil, errors.New("argon2 key length below minimum")
	}

	return &Argon2{params: p}, nil
}

// Hash derives a salted digest of password and returns it in PHC format.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	digest := argon2.IDKey(
		[]byte(password),
		salt,
		a.params.Time,
		a.params.Memory,
		a.params.Parallelism,
		a.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether password matches the stored PHC string. The digest
// comparison is constant-time.
func (a *Argon2) Verify(password, stored string) (bool, error) {
	parsed, err := parsePHC(stored)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsRehash reports whether the stored hash was produced with weaker
// parameters than the hasher is configured with.
func (a *Argon2) NeedsRehash(stored string) (bool, error) {
	parsed, err := parsePHC(stored)
	if err != nil {
		return false, err
	}

	switch {
	case a.params.Memory > parsed.memory:
		return true, nil
	case a.params.Time > parsed.time:
		return true, nil
	case a.params.Parallelism > parsed.parallelism:
		return true, nil
	case a.params.KeyLength != parsed.keyLength:
		return true, nil
	}

	return false, nil
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

func parsePHC(stored string) (*parsedPHC, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("missing argon2 version")
	}
	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var p parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errors.New("invalid parameter entry")
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return nil, errors.New("invalid parameter value")
		}
		switch kv[0] {
		case "m":
			p.memory = uint32(v)
		case "t":
			p.time = uint32(v)
		case "p":
			if v > 255 {
				return nil, errors.New("invalid parallelism parameter")
			}
			p.parallelism = uint8(v)
		default:
			return nil, errors.New("unknown parameter")
		}
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, errors.New("parameters below minimum")
	}

	p.salt, err = base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(p.salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt")
	}
	p.hash, err = base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(p.hash) == 0 {
		return nil, errors.New("invalid hash")
	}
	p.keyLength = uint32(len(p.hash))

	return &p, nil
}
