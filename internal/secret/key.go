// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/reelvault/internal/log"
)

// KeySource resolves the encryption key: environment first, then the key
// file, generating and persisting a new key when neither exists.
type KeySource struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// File is the hex key file, usually <data_dir>/secret.key.
	File string
}

// Load returns the 32 byte key.
func (s KeySource) Load() ([]byte, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := strings.TrimSpace(getenv(EnvKey)); v != "" {
		key, err := parseKey(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvKey, err)
		}
		return key, nil
	}
	if s.File == "" {
		return nil, errors.New("no secret key configured")
	}

	data, err := os.ReadFile(s.File)
	switch {
	case err == nil:
		key, err := parseKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.File, err)
		}
		return key, nil
	case errors.Is(err, fs.ErrNotExist):
		return generateKeyFile(s.File)
	default:
		return nil, fmt.Errorf("read key file: %w", err)
	}
}

func parseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil || len(key) != keySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}

func generateKeyFile(path string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return nil, fmt.Errorf("create pending key file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	if _, err := pf.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return nil, fmt.Errorf("commit key file: %w", err)
	}
	logger := log.WithComponent("secret")
	logger.Info().Str(log.FieldPath, path).Msg("generated new secret key")
	return key, nil
}
