package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TB_STR", "value")
	t.Setenv("TB_BOOL", "true")
	t.Setenv("TB_BAD_BOOL", "maybe")
	t.Setenv("TB_DUR", "3s")

	assert.Equal(t, "value", EnvOrDefault("TB_STR", "x"))
	assert.Equal(t, "x", EnvOrDefault("TB_MISSING", "x"))
	assert.True(t, EnvBoolOrDefault("TB_BOOL", false))
	assert.True(t, EnvBoolOrDefault("TB_BAD_BOOL", true))
	assert.Equal(t, 3*time.Second, EnvDurationOrDefault("TB_DUR", time.Second))
	assert.Equal(t, time.Second, EnvDurationOrDefault("TB_MISSING", time.Second))
}
