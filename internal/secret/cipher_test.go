// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package secret

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewWithKey(bytes.Repeat([]byte{0x42}, keySize))
	require.NoError(t, err)
	return c
}

func noEnv(string) string { return "" }

func TestCipher_RoundTrip(t *testing.T) {
	c := testCipher(t)
	for _, plain := range []string{"", "hunter2", "pässwörd ✓ 密码", strings.Repeat("x", 4096)} {
		wire, err := c.Encrypt(plain)
		require.NoError(t, err)
		assert.True(t, IsSealed(wire), wire)
		assert.Equal(t, plain, c.Decrypt(wire))
	}
}

func TestCipher_FreshIVPerCall(t *testing.T) {
	c := testCipher(t)
	a, err := c.Encrypt("same")
	require.NoError(t, err)
	b, err := c.Encrypt("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	parts := strings.Split(a, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 24)
	assert.Len(t, parts[1], 32)
	assert.Len(t, parts[2], 2*len("same"))
}

func TestCipher_DecryptFallsBackToInput(t *testing.T) {
	c := testCipher(t)
	wire, err := c.Encrypt("token")
	require.NoError(t, err)

	tampered := []byte(wire)
	// flip one hex digit inside the tag
	if tampered[26] == 'a' {
		tampered[26] = 'b'
	} else {
		tampered[26] = 'a'
	}

	other, err := NewWithKey(bytes.Repeat([]byte{0x07}, keySize))
	require.NoError(t, err)

	for _, in := range []string{
		"plain-legacy-token",
		"",
		"abc:def:012",
		strings.ToUpper(wire),
		string(tampered),
	} {
		assert.Equal(t, in, c.Decrypt(in))
	}
	assert.Equal(t, wire, other.Decrypt(wire))
}

func TestNewWithKey_RejectsShortKeys(t *testing.T) {
	_, err := NewWithKey([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeySource_EnvTakesPrecedence(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, keySize)
	file := filepath.Join(t.TempDir(), "secret.key")
	src := KeySource{
		Getenv: func(k string) string {
			if k == EnvKey {
				return hex.EncodeToString(key)
			}
			return ""
		},
		File: file,
	}

	got, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, key, got)
	assert.NoFileExists(t, file)
}

func TestKeySource_InvalidEnv(t *testing.T) {
	src := KeySource{Getenv: func(string) string { return "zz" }}
	_, err := src.Load()
	assert.ErrorIs(t, err, ErrInvalidKey)

	c := New(src)
	_, err = c.Encrypt("x")
	assert.Error(t, err)
	assert.Equal(t, "x", c.Decrypt("x"))
}

func TestKeySource_GeneratesAndReusesKeyFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "secret.key")
	src := KeySource{Getenv: noEnv, File: file}

	first, err := src.Load()
	require.NoError(t, err)
	require.Len(t, first, keySize)

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Values sealed by one instance open with another using the same file.
	wire, err := New(src).Encrypt("shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", New(src).Decrypt(wire))
}

func TestKeySource_CorruptKeyFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "secret.key")
	require.NoError(t, os.WriteFile(file, []byte("not-hex"), 0o600))

	_, err := KeySource{Getenv: noEnv, File: file}.Load()
	assert.ErrorIs(t, err, ErrInvalidKey)
}
