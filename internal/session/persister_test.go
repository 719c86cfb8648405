package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercisePersister runs the contract every backend must satisfy
func exercisePersister(t *testing.T, p Persister) {
	ctx := context.Background()
	key := "test-" + filepath.Base(t.Name())

	require.NoError(t, p.Delete(ctx, key))

	data, err := p.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, p.Store(ctx, key, []byte(`{"username":"customer1"}`)))
	require.NoError(t, p.Store(ctx, key, []byte(`{"username":"customer2"}`)))

	data, err = p.Load(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"customer2"}`, string(data))

	require.NoError(t, p.Delete(ctx, key))
	require.NoError(t, p.Delete(ctx, key))

	data, err = p.Load(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFilePersister_OS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	p := NewFilePersister(dir)
	exercisePersister(t, p)

	require.NoError(t, p.Store(context.Background(), StorageKey, []byte(`{}`)))
	info, err := os.Stat(filepath.Join(dir, "user.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestPostgresPersister(t *testing.T) {
	dsn := os.Getenv("BROKER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BROKER_TEST_POSTGRES_DSN not set")
	}
	p, err := NewPostgresPersister(context.Background(), dsn)
	require.NoError(t, err)
	defer p.Close()

	exercisePersister(t, p)
}

func TestRedisPersister(t *testing.T) {
	addr := os.Getenv("BROKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BROKER_TEST_REDIS_ADDR not set")
	}
	p, err := NewRedisPersister(context.Background(), &redis.Options{Addr: addr})
	require.NoError(t, err)
	defer p.Close()

	exercisePersister(t, p)
}
