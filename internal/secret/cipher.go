// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package secret encrypts small credentials at rest with AES-256-GCM.
//
// Wire format: hex(iv):hex(tag):hex(ciphertext), lowercase, iv 12 bytes,
// tag 16 bytes. Values that do not match the format, or fail
// authentication, are legacy plaintext and are returned unchanged.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/reelvault/internal/log"
)

const (
	// EnvKey holds a 64 hex char key that takes precedence over the key file.
	EnvKey = "REELVAULT_SECRET_KEY"

	keySize = 32
	ivSize  = 12
	tagSize = 16
)

var wirePattern = regexp.MustCompile(`^[0-9a-f]{24}:[0-9a-f]{32}:[0-9a-f]*$`)

// ErrInvalidKey is returned for keys that are not 32 bytes of hex.
var ErrInvalidKey = errors.New("secret key must be 64 hex characters")

// Cipher encrypts and decrypts credential strings. The key is resolved on
// first use and cached for the lifetime of the instance.
type Cipher struct {
	keys   KeySource
	logger zerolog.Logger

	once sync.Once
	aead cipher.AEAD
	err  error
}

// New returns a Cipher that loads its key from keys.
func New(keys KeySource) *Cipher {
	return &Cipher{keys: keys, logger: log.WithComponent("secret")}
}

// NewWithKey returns a Cipher with a fixed key.
func NewWithKey(key []byte) (*Cipher, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	c := &Cipher{logger: log.WithComponent("secret"), aead: aead}
	c.once.Do(func() {})
	return c, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, ivSize)
}

func (c *Cipher) init() (cipher.AEAD, error) {
	c.once.Do(func() {
		key, err := c.keys.Load()
		if err != nil {
			c.err = err
			c.logger.Error().Err(err).Msg("secret key unavailable")
			return
		}
		c.aead, c.err = newAEAD(key)
	})
	return c.aead, c.err
}

// Encrypt seals plaintext with a fresh random IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := c.init()
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("encrypt: generate iv: %w", err)
	}
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a wire-format value. Anything that is not a valid sealed
// value for this key is treated as legacy plaintext and returned as is.
func (c *Cipher) Decrypt(wire string) string {
	if !wirePattern.MatchString(wire) {
		return wire
	}
	aead, err := c.init()
	if err != nil {
		return wire
	}
	parts := strings.SplitN(wire, ":", 3)
	iv, err1 := hex.DecodeString(parts[0])
	tag, err2 := hex.DecodeString(parts[1])
	ct, err3 := hex.DecodeString(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return wire
	}
	plain, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		c.logger.Debug().Msg("credential failed authentication, treating as plaintext")
		return wire
	}
	return string(plain)
}

// IsSealed reports whether s has the encrypted wire shape.
func IsSealed(s string) bool {
	return wirePattern.MatchString(s)
}
