package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/ndikit/internal/config"
	"github.com/zsiec/ndikit/internal/logger"
	"github.com/zsiec/ndikit/pkg/ndi"
)

func setupTestDirectory(t *testing.T) (*miniredis.Miniredis, *redis.Client, *RedisDirectory) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	dir := New(client, config.DirectoryConfig{KeyPrefix: "test", TTL: 30 * time.Second}, logger.NewNullLogger())
	dir.delay = time.Millisecond
	return mr, client, dir
}

func TestNewEntry(t *testing.T) {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name    string
		address string
		want    Entry
	}{
		{
			name:    "ip address",
			address: "10.0.0.1:5960",
			want:    Entry{Name: "STUDIO (Cam 1)", Address: "10.0.0.1:5960", Host: "10.0.0.1", Port: 5960, SeenAt: seen.UTC()},
		},
		{
			name:    "url address",
			address: "rtsp://camera.local:554/stream",
			want:    Entry{Name: "STUDIO (Cam 1)", Address: "rtsp://camera.local:554/stream", Host: "camera.local", Port: 554, SeenAt: seen.UTC()},
		},
		{
			name: "no address",
			want: Entry{Name: "STUDIO (Cam 1)", SeenAt: seen.UTC()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewEntry(ndi.NewSource("STUDIO (Cam 1)", tt.address), seen))
		})
	}
}

func TestRedisDirectory_PublishAndList(t *testing.T) {
	mr, _, dir := setupTestDirectory(t)
	ctx := context.Background()

	err := dir.Publish(ctx, []ndi.Source{
		ndi.NewSource("STUDIO (Cam 2)", "10.0.0.2:5961"),
		ndi.NewSource("STUDIO (Cam 1)", "10.0.0.1:5960"),
	})
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:sources"))
	assert.True(t, mr.Exists("test:source:STUDIO (Cam 1)"))
	assert.Equal(t, 30*time.Second, mr.TTL("test:source:STUDIO (Cam 1)"))

	entries, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "STUDIO (Cam 1)", entries[0].Name)
	assert.Equal(t, uint16(5960), entries[0].Port)
	assert.Equal(t, "10.0.0.2", entries[1].Host)
	assert.False(t, entries[0].SeenAt.IsZero())
}

func TestRedisDirectory_PublishReplaces(t *testing.T) {
	_, _, dir := setupTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Publish(ctx, []ndi.Source{ndi.NewSource("A (1)", ""), ndi.NewSource("B (1)", "")}))
	require.NoError(t, dir.Publish(ctx, []ndi.Source{ndi.NewSource("B (1)", "")}))

	entries, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "B (1)", entries[0].Name)

	require.NoError(t, dir.Publish(ctx, nil))
	entries, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRedisDirectory_Get(t *testing.T) {
	mr, _, dir := setupTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Publish(ctx, []ndi.Source{ndi.NewSource("STUDIO (Cam 1)", "10.0.0.1:5960")}))

	e, err := dir.Get(ctx, "STUDIO (Cam 1)")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", e.Host)

	_, err = dir.Get(ctx, "STUDIO (Cam 9)")
	assert.ErrorIs(t, err, ErrNotFound)

	mr.FastForward(31 * time.Second)
	_, err = dir.Get(ctx, "STUDIO (Cam 1)")
	assert.ErrorIs(t, err, ErrNotFound, "entries expire")
}

func TestRedisDirectory_Remove(t *testing.T) {
	_, _, dir := setupTestDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.Publish(ctx, []ndi.Source{ndi.NewSource("A (1)", ""), ndi.NewSource("B (1)", "")}))
	require.NoError(t, dir.Remove(ctx, "A (1)"))
	require.NoError(t, dir.Remove(ctx, "missing"))

	entries, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "B (1)", entries[0].Name)

	_, err = dir.Get(ctx, "A (1)")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisDirectory_ListSkipsMalformed(t *testing.T) {
	mr, _, dir := setupTestDirectory(t)

	mr.HSet("test:sources", "bad", "{not json")
	mr.HSet("test:sources", "good", `{"name":"good","seen_at":"2024-01-01T00:00:00Z"}`)

	entries, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Name)
}

func TestRedisDirectory_PublishRetriesThenFails(t *testing.T) {
	mr, _, dir := setupTestDirectory(t)
	mr.SetError("ERR simulated failure")

	err := dir.Publish(context.Background(), []ndi.Source{ndi.NewSource("A (1)", "")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish 1 sources")

	mr.SetError("")
	require.NoError(t, dir.Publish(context.Background(), []ndi.Source{ndi.NewSource("A (1)", "")}))
}

func TestNew_Defaults(t *testing.T) {
	dir := New(nil, config.DirectoryConfig{}, logger.NewNullLogger())
	assert.Equal(t, "ndikit", dir.prefix)
	assert.Equal(t, 30*time.Second, dir.ttl)
	assert.Equal(t, "ndikit:source:CAM (1)", dir.sourceKey("CAM (1)"))
}
