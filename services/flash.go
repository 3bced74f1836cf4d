package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	flashCookieName = "flash_session"
	flashTTL        = time.Hour
)

const flashSessionKey contextKey = "flash_session"

// Flash is a one-shot notice shown on the next rendered page.
type Flash struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// FlashStore queues flashes per browser session.
type FlashStore interface {
	Push(ctx context.Context, sessionID string, flash Flash) error
	// Pop returns the queued flashes in push order and clears them.
	Pop(ctx context.Context, sessionID string) ([]Flash, error)
}

// NewFlashStore connects to Redis when a URL is given and keeps flashes in
// process memory otherwise.
func NewFlashStore(ctx context.Context, redisURL string) (FlashStore, error) {
	if redisURL == "" {
		slog.Warn("Redis URL not configured, keeping flash messages in memory")
		return NewMemoryFlashStore(), nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Redis flash store connected", "addr", options.Addr)
	return NewRedisFlashStore(client), nil
}

type RedisFlashStore struct {
	client *redis.Client
}

func NewRedisFlashStore(client *redis.Client) *RedisFlashStore {
	return &RedisFlashStore{client: client}
}

func flashKey(sessionID string) string {
	return "flash:" + sessionID
}

func (s *RedisFlashStore) Push(ctx context.Context, sessionID string, flash Flash) error {
	data, err := json.Marshal(flash)
	if err != nil {
		return err
	}
	key := flashKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.Expire(ctx, key, flashTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to push flash: %w", err)
	}
	return nil
}

func (s *RedisFlashStore) Pop(ctx context.Context, sessionID string) ([]Flash, error) {
	key := flashKey(sessionID)
	var entries *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		entries = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pop flashes: %w", err)
	}

	flashes := make([]Flash, 0, len(entries.Val()))
	for _, raw := range entries.Val() {
		var flash Flash
		if err := json.Unmarshal([]byte(raw), &flash); err != nil {
			slog.Warn("Dropping malformed flash entry", "error", err)
			continue
		}
		flashes = append(flashes, flash)
	}
	return flashes, nil
}

type MemoryFlashStore struct {
	mu      sync.Mutex
	flashes map[string][]Flash
}

func NewMemoryFlashStore() *MemoryFlashStore {
	return &MemoryFlashStore{flashes: make(map[string][]Flash)}
}

func (s *MemoryFlashStore) Push(ctx context.Context, sessionID string, flash Flash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flashes[sessionID] = append(s.flashes[sessionID], flash)
	return nil
}

func (s *MemoryFlashStore) Pop(ctx context.Context, sessionID string) ([]Flash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flashes := s.flashes[sessionID]
	delete(s.flashes, sessionID)
	return flashes, nil
}

// FlashSession makes sure every browser carries a flash session cookie.
func FlashSession(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := tokenFromCookie(r, flashCookieName)
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     flashCookieName,
					Value:    sessionID,
					Path:     "/",
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			ctx := context.WithValue(r.Context(), flashSessionKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func flashSessionID(ctx context.Context) string {
	id, _ := ctx.Value(flashSessionKey).(string)
	return id
}
