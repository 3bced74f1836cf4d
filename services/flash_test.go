package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestFlashStores(t *testing.T) {
	stores := map[string]func(t *testing.T) FlashStore{
		"memory": func(t *testing.T) FlashStore { return NewMemoryFlashStore() },
		"redis": func(t *testing.T) FlashStore {
			client, _ := setupTestRedis(t)
			return NewRedisFlashStore(client)
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			require.NoError(t, store.Push(ctx, "a", Flash{Category: "success", Message: "first"}))
			require.NoError(t, store.Push(ctx, "a", Flash{Category: "error", Message: "second"}))
			require.NoError(t, store.Push(ctx, "b", Flash{Category: "info", Message: "other session"}))

			flashes, err := store.Pop(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, []Flash{
				{Category: "success", Message: "first"},
				{Category: "error", Message: "second"},
			}, flashes)

			flashes, err = store.Pop(ctx, "a")
			require.NoError(t, err)
			assert.Empty(t, flashes, "pop clears the queue")

			flashes, err = store.Pop(ctx, "b")
			require.NoError(t, err)
			assert.Len(t, flashes, 1)
		})
	}
}

func TestRedisFlashStore_Expires(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisFlashStore(client)
	ctx := context.Background()

	require.NoError(t, store.Push(ctx, "a", Flash{Category: "info", Message: "soon gone"}))
	assert.Equal(t, flashTTL, mr.TTL(flashKey("a")))

	mr.FastForward(flashTTL + 1)

	flashes, err := store.Pop(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, flashes)
}

func TestRedisFlashStore_SkipsMalformed(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewRedisFlashStore(client)

	_, err := mr.RPush(flashKey("a"), "{not json")
	require.NoError(t, err)
	require.NoError(t, store.Push(context.Background(), "a", Flash{Category: "info", Message: "ok"}))

	flashes, err := store.Pop(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []Flash{{Category: "info", Message: "ok"}}, flashes)
}

func TestNewFlashStore(t *testing.T) {
	store, err := NewFlashStore(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryFlashStore{}, store)

	_, mr := setupTestRedis(t)
	store, err = NewFlashStore(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.IsType(t, &RedisFlashStore{}, store)

	_, err = NewFlashStore(context.Background(), "::not a url")
	assert.Error(t, err)
}

func TestFlashSession(t *testing.T) {
	var seen string
	handler := FlashSession(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = flashSessionID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, flashCookieName, cookies[0].Name)
	assert.Equal(t, cookies[0].Value, seen)

	existing := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: existing})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Result().Cookies(), "valid session cookie is reused")
	assert.Equal(t, existing, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: flashCookieName, Value: "tampered"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEqual(t, "tampered", seen)
}
