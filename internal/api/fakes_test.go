package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"infrasite/internal/api/middleware"
)

// fakeKV is an in-memory redisKV; TTLs are recorded but never expire.
type fakeKV struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (k *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failGet {
		return redis.NewStringResult("", errors.New("redis down"))
	}
	v, ok := k.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (k *fakeKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		k.values[key] = string(v)
	default:
		k.values[key] = fmt.Sprint(v)
	}
	if expiration > 0 {
		k.ttls[key] = expiration
	}
	return redis.NewStatusResult("OK", nil)
}

func (k *fakeKV) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := k.values[key]; ok {
			n++
		}
		delete(k.values, key)
		delete(k.ttls, key)
	}
	return redis.NewIntResult(n, nil)
}

func (k *fakeKV) Incr(ctx context.Context, key string) *redis.IntCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	var n int64
	if v, ok := k.values[key]; ok {
		fmt.Sscan(v, &n)
	}
	n++
	k.values[key] = fmt.Sprint(n)
	return redis.NewIntResult(n, nil)
}

func (k *fakeKV) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.values[key]; !ok {
		return redis.NewBoolResult(false, nil)
	}
	k.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (k *fakeKV) TTL(ctx context.Context, key string) *redis.DurationCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.values[key]; !ok {
		return redis.NewDurationResult(-2*time.Second, nil)
	}
	ttl, ok := k.ttls[key]
	if !ok {
		return redis.NewDurationResult(-1*time.Second, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (k *fakeKV) has(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.values[key]
	return ok
}

type fakeStorage struct {
	uploaded  map[string][]byte
	deleted   []string
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (*minio.UploadInfo, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	return &minio.UploadInfo{Key: objectName}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://files.example.invalid/" + objectKey, nil
}

func (s *fakeStorage) GeneratePresignedURLWithParams(_ context.Context, objectKey string, _ time.Duration, _ map[string]string) (string, error) {
	return "https://files.example.invalid/" + objectKey + "?download=1", nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.uploaded, objectKey)
	return nil
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// withUser stands in for the auth middleware in handler tests.
func withUser(userID uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}
