package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"cms-service/internal/application"

	"github.com/jonboulle/clockwork"
)

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in process; used for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
	clock   clockwork.Clock
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{objects: map[string]object{}, clock: clock}
}

func (m *Memory) Upload(_ context.Context, bucket, key string, body io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = object{data: buf.Bytes(), contentType: contentType}
	return nil
}

func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *Memory) PresignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[bucket+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s/%s: %w", bucket, key, application.ErrNotFound)
	}
	u := url.URL{Scheme: "memory", Host: bucket, Path: "/" + key}
	u.RawQuery = url.Values{"expires": {fmt.Sprint(m.clock.Now().Add(ttl).Unix())}}.Encode()
	return u.String(), nil
}

// Get returns a stored object's bytes and content type.
func (m *Memory) Get(bucket, key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[bucket+"/"+key]
	return o.data, o.contentType, ok
}
