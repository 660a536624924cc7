package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/tandemhq/tandem/config"
)

func newTestCache(t *testing.T) Cache {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	c, err := NewCache()
	assert.NoError(t, err)
	return c
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	setValue := map[string]string{"status": "RUNNING"}
	err := c.Set(ctx, "saga:sga_123", setValue, 10*time.Minute)
	assert.NoError(t, err)

	var getValue map[string]string
	err = c.Get(ctx, "saga:sga_123", &getValue)
	assert.NoError(t, err)
	assert.Equal(t, setValue, getValue)
}

func TestGet_Miss(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var value map[string]string
	err := c.Get(ctx, "saga:missing", &value)
	assert.NoError(t, err)
	assert.Empty(t, value)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	assert.NoError(t, c.Set(ctx, "inventory:inv_1", "cached", time.Minute))
	assert.NoError(t, c.Delete(ctx, "inventory:inv_1"))

	var value string
	assert.NoError(t, c.Get(ctx, "inventory:inv_1", &value))
	assert.Empty(t, value)
}
