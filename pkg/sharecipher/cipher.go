// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package sharecipher

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	envelopeVersion byte = 0x01

	// headerSize covers version, algorithm and timestamp.
	headerSize = 1 + 1 + 8

	// MaxClockSkew is how far in the future a token timestamp may be.
	MaxClockSkew = 60 * time.Second
)

var tokenEncoding = base64.RawURLEncoding

// Config controls a Cipher.
type Config struct {
	// Algorithm used by Encrypt. Decrypt accepts every supported algorithm.
	Algorithm Algorithm

	// TTL bounds the age of tokens accepted by Decrypt. Zero disables the
	// check.
	TTL time.Duration

	// Random is the nonce source. Defaults to crypto/rand.
	Random io.Reader

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with automatic algorithm selection and no
// TTL.
func DefaultConfig() *Config {
	return &Config{Algorithm: AlgorithmAuto}
}

// Cipher encrypts individual share texts into self-describing tokens. A
// Cipher is safe for concurrent use.
type Cipher struct {
	alg   Algorithm
	algID byte
	ttl   time.Duration
	rand  io.Reader
	now   func() time.Time
	aeads map[byte]cipher.AEAD
}

// New returns a Cipher for key. A nil cfg selects DefaultConfig.
func New(key Key, cfg *Config) (*Cipher, error) {
	if key.IsZero() {
		return nil, fmt.Errorf("%w: all-zero key", ErrInvalidKey)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("sharecipher: negative ttl %s", cfg.TTL)
	}

	alg := SelectAlgorithm(cfg.Algorithm)
	algID, err := alg.id()
	if err != nil {
		return nil, err
	}

	c := &Cipher{
		alg:   alg,
		algID: algID,
		ttl:   cfg.TTL,
		rand:  cfg.Random,
		now:   cfg.Now,
		aeads: make(map[byte]cipher.AEAD, 2),
	}
	if c.rand == nil {
		c.rand = rand.Reader
	}
	if c.now == nil {
		c.now = time.Now
	}

	for _, a := range []Algorithm{AlgorithmXChaCha20Poly1305, AlgorithmAES256GCM} {
		aead, err := newAEAD(key, a)
		if err != nil {
			return nil, err
		}
		id, _ := a.id()
		c.aeads[id] = aead
	}
	return c, nil
}

// Algorithm returns the algorithm used by Encrypt.
func (c *Cipher) Algorithm() Algorithm {
	return c.alg
}

// Encrypt seals plaintext under a fresh random nonce. Encrypting the same
// plaintext twice yields different tokens.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	return c.Seal([]byte(plaintext))
}

// Decrypt opens a token produced by Encrypt.
func (c *Cipher) Decrypt(token string) (string, error) {
	pt, err := c.Open(token)
	if err != nil {
		return "", err
	}
	defer clear(pt)
	return string(pt), nil
}

// Seal is Encrypt for byte slices.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	aead := c.aeads[c.algID]

	buf := make([]byte, headerSize+aead.NonceSize(), headerSize+aead.NonceSize()+len(plaintext)+aead.Overhead())
	buf[0] = envelopeVersion
	buf[1] = c.algID
	binary.BigEndian.PutUint64(buf[2:headerSize], uint64(c.now().Unix()))

	nonce := buf[headerSize:]
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("sharecipher: generate nonce: %w", err)
	}

	out := aead.Seal(buf, nonce, plaintext, buf[:headerSize])
	return tokenEncoding.EncodeToString(out), nil
}

// Open is Decrypt for byte slices. No plaintext is returned on error.
func (c *Cipher) Open(token string) ([]byte, error) {
	raw, err := tokenEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding", ErrExpiredOrMalformed)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("%w: token too short", ErrExpiredOrMalformed)
	}
	if raw[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrExpiredOrMalformed, raw[0])
	}
	aead, ok := c.aeads[raw[1]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrExpiredOrMalformed, raw[1])
	}
	if len(raw) < headerSize+aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: token too short", ErrExpiredOrMalformed)
	}

	header := raw[:headerSize]
	nonce := raw[headerSize : headerSize+aead.NonceSize()]
	ct := raw[headerSize+aead.NonceSize():]

	pt, err := aead.Open(nil, nonce, ct, header)
	if err != nil {
		return nil, ErrAuthenticationFailure
	}

	if err := c.checkTimestamp(int64(binary.BigEndian.Uint64(header[2:]))); err != nil {
		clear(pt)
		return nil, err
	}
	return pt, nil
}

// Timestamp returns the authenticated creation time of token.
func (c *Cipher) Timestamp(token string) (time.Time, error) {
	pt, err := c.Open(token)
	if err != nil {
		return time.Time{}, err
	}
	clear(pt)
	raw, _ := tokenEncoding.DecodeString(token)
	return time.Unix(int64(binary.BigEndian.Uint64(raw[2:headerSize])), 0), nil
}

func (c *Cipher) checkTimestamp(ts int64) error {
	now := c.now()
	issued := time.Unix(ts, 0)
	if issued.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: timestamp in the future", ErrExpiredOrMalformed)
	}
	if c.ttl > 0 && now.Sub(issued) > c.ttl {
		return fmt.Errorf("%w: token expired", ErrExpiredOrMalformed)
	}
	return nil
}
