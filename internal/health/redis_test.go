package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	checker := NewRedisChecker(client)
	assert.Equal(t, "redis", checker.Name())
	require.NoError(t, checker.Check(context.Background()))
	assert.Equal(t, int64(0), checker.Details()["keys"])

	require.NoError(t, mr.Set("ndikit:source:CAM 1", "{}"))
	require.NoError(t, checker.Check(context.Background()))
	assert.Equal(t, int64(1), checker.Details()["keys"])

	mr.SetError("ERR simulated outage")
	err := checker.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRedisChecker_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	err := NewRedisChecker(client).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRedisChecker_NilClient(t *testing.T) {
	err := NewRedisChecker(nil).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
