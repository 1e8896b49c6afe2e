package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sjsage522/teetimeworker/pkg/errors"
)

var _ CacheService = (*MemcacheService)(nil)

// This test requires a running memcached instance
// If memcached is not available, the test will be skipped
func TestMemcacheService(t *testing.T) {
	mc := NewMemcacheService("localhost:11211")
	if err := mc.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}

	err := mc.Set("teetime_test_key", []byte("test_value"), 1*time.Second)
	require.NoError(t, err)

	value, err := mc.Get("teetime_test_key")
	assert.NoError(t, err)
	assert.Equal(t, "test_value", string(value))

	assert.NoError(t, mc.Delete("teetime_test_key"))

	_, err = mc.Get("teetime_test_key")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Deleting a missing key is not an error
	assert.NoError(t, mc.Delete("teetime_test_key"))
}

func TestMemcacheServiceUnreachable(t *testing.T) {
	mc := NewMemcacheService("127.0.0.1:1")

	err := mc.Ping()
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCache))

	_, err = mc.Get("any")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}
