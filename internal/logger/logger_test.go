package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	l := &Logger{hashUserIDs: true}
	out := l.sanitizeKVs([]interface{}{"jwt_secret", "s3cr3t", "user_id", "u-1", "path", "/v1/health", "dangling"})
	assert.Equal(t, "[REDACTED]", out[1])
	assert.NotEqual(t, "u-1", out[3])
	assert.Contains(t, out[3], "h:")
	assert.Equal(t, "/v1/health", out[5])
	assert.Equal(t, "dangling", out[6])

	plain := &Logger{}
	assert.Equal(t, "u-1", plain.sanitizeKVs([]interface{}{"user_id", "u-1"})[1])
}

func TestNopLogger(t *testing.T) {
	l := NewNop().With("component", "test")
	l.Info("ignored", "k", "v")
	l.Sync()
}
