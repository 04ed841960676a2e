// Package memory implements the blob store in memory, for tests and the
// development store mode. Failures can be injected per operation so callers
// can exercise the compensation paths.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/audiolens/scribed/internal/blob"
)

type object struct {
	data        []byte
	contentType string
}

// Store implements blob.Store with an in-memory map.
type Store struct {
	mu      sync.Mutex
	objects map[string]object

	// Injected failures, consumed by the next matching call.
	failPut    error
	failDelete error

	puts    []string
	deletes []string
}

var _ blob.Store = (*Store)(nil)

// NewStore creates an empty in-memory blob store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string]object),
	}
}

// FailNextPut makes the next Put return err.
func (s *Store) FailNextPut(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPut = err
}

// FailNextDelete makes the next Delete return err.
func (s *Store) FailNextDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = err
}

// Puts returns the keys written so far, in order.
func (s *Store) Puts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.puts...)
}

// Deletes returns the keys deleted so far, in order.
func (s *Store) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, contentType string, size int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPut != nil {
		err := s.failPut
		s.failPut = nil
		return "", err
	}

	s.objects[key] = object{data: data, contentType: contentType}
	s.puts = append(s.puts, key)

	return "mem://" + key, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, blob.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDelete != nil {
		err := s.failDelete
		s.failDelete = nil
		return err
	}

	delete(s.objects, key)
	s.deletes = append(s.deletes, key)

	return nil
}

func (s *Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = blob.DefaultPresignTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return "", blob.ErrNotFound
	}

	return fmt.Sprintf("mem://%s?expires=%d", key, int(ttl.Seconds())), nil
}

func (s *Store) KeyFromURL(url string) (string, error) {
	if !strings.HasPrefix(url, "mem://") {
		return "", fmt.Errorf("url %q is not a memory blob url", url)
	}
	return strings.TrimPrefix(url, "mem://"), nil
}
