// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("REELVAULT_T_STR", "value")
	t.Setenv("REELVAULT_T_EMPTY", "")
	t.Setenv("REELVAULT_T_INT", "42")
	t.Setenv("REELVAULT_T_BADINT", "4x")
	t.Setenv("REELVAULT_T_DUR", "90s")
	t.Setenv("REELVAULT_T_BOOL", "YES")
	t.Setenv("REELVAULT_T_BADBOOL", "maybe")
	t.Setenv("REELVAULT_T_FLOAT", "0.25")

	assert.Equal(t, "value", ParseString("REELVAULT_T_STR", "d"))
	assert.Equal(t, "d", ParseString("REELVAULT_T_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("REELVAULT_T_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("REELVAULT_T_INT", 1))
	assert.Equal(t, 1, ParseInt("REELVAULT_T_BADINT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("REELVAULT_T_DUR", time.Second))
	assert.True(t, ParseBool("REELVAULT_T_BOOL", false))
	assert.True(t, ParseBool("REELVAULT_T_BADBOOL", true))
	assert.Equal(t, 0.25, ParseFloat("REELVAULT_T_FLOAT", 1))
}

func TestSensitiveKeys(t *testing.T) {
	assert.True(t, sensitive(EnvRedisPassword))
	assert.True(t, sensitive("REELVAULT_SECRET_KEY"))
	assert.False(t, sensitive(EnvListen))
}
