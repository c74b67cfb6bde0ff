package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/orgmgr/orgmgr/pkg/logger"
)

// IdempotencyKeyHeader is the header clients send to request replay
// protection.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// Cache stores cached responses. Implemented by RedisCache in production and
// by in-memory fakes in tests.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisCache is the Redis-backed Cache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps a Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// Idempotency replays cached responses for repeated mutating requests carrying
// the same idempotency key. Only successful responses (< 400) are cached, for
// the configured TTL.
func Idempotency(cache Cache, ttl time.Duration, log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.NewDefault("idempotency")
	}
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := requestFingerprint(c.Request.Method, c.Request.URL.Path, body, key)
		ctx := c.Request.Context()

		if raw, ok, err := cache.Get(ctx, fingerprint); err != nil {
			log.WithContext(ctx).WithError(err).Warn("idempotency cache lookup failed")
		} else if ok {
			var cached cachedResponse
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				c.Header("X-Idempotency-Replay", "true")
				c.Data(cached.Status, cached.ContentType, []byte(cached.Body))
				c.Abort()
				return
			}
		}

		writer := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Next()

		if writer.Status() >= http.StatusBadRequest {
			return
		}
		cached := cachedResponse{
			Status:      writer.Status(),
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.String(),
		}
		raw, err := json.Marshal(cached)
		if err != nil {
			return
		}
		if err := cache.Set(ctx, fingerprint, string(raw), ttl); err != nil {
			log.WithContext(ctx).WithError(err).Warn("idempotency cache store failed")
		}
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// requestFingerprint hashes method, path, body, and key so a reused key with a
// different payload produces a distinct cache entry.
func requestFingerprint(method, path string, body []byte, key string) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(body)
	h.Write([]byte(key))
	return "idempotency:" + hex.EncodeToString(h.Sum(nil))
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
