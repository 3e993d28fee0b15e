// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_CollectsAllErrors(t *testing.T) {
	v := New()
	v.Positive("Workers", 0)
	v.PositiveDuration("Timeout", -time.Second)
	v.OneOf("Level", "loud", []string{"debug", "info"})
	v.NotEmpty("Name", "  ")

	require.False(t, v.IsValid())
	err := v.Err()
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"Workers", "Timeout", "Level", "Name"}, ve.Fields())
	assert.Contains(t, err.Error(), "validation failed for Timeout: duration must be positive")
}

func TestValidator_ValidIsNil(t *testing.T) {
	v := New()
	v.Positive("Workers", 1)
	v.FloatRange("Sampling", 0.5, 0, 1)
	v.ListenAddr("Listen", ":8080")
	v.ListenAddr("Listen", "127.0.0.1:0")
	v.URL("Endpoint", "http://collector:4318", []string{"http", "https"})
	assert.True(t, v.IsValid())
	assert.NoError(t, v.Err())
}

func TestValidator_Directory(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name    string
		path    string
		create  bool
		wantErr string
	}{
		{"existing", tmp, false, ""},
		{"created", filepath.Join(tmp, "a", "b"), true, ""},
		{"missing", filepath.Join(tmp, "nope"), false, "does not exist"},
		{"relative", "data", true, "must be absolute"},
		{"traversal", tmp + "/x/../y", true, "traversal"},
		{"file", file, true, "not a directory"},
		{"empty", "", true, "cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Directory("Dir", tt.path, tt.create)
			if tt.wantErr == "" {
				assert.NoError(t, v.Err())
				return
			}
			require.Error(t, v.Err())
			assert.Contains(t, v.Err().Error(), tt.wantErr)
		})
	}
	assert.DirExists(t, filepath.Join(tmp, "a", "b"))
}

func TestValidator_ListenAddrAndURL(t *testing.T) {
	v := New()
	v.ListenAddr("A", "8080")
	v.ListenAddr("B", ":99999")
	v.ListenAddr("C", "example.com:80")
	v.URL("D", "collector:4318", nil)
	v.URL("E", "ftp://collector", []string{"http"})

	var ve ValidationError
	require.ErrorAs(t, v.Err(), &ve)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, ve.Fields())
}
