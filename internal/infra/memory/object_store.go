package memory

import (
	"context"
	"sync"

	"dbkompare-functions/internal/domain"
)

// ObjectStore is an in-process stand-in for the certificate bucket.
type ObjectStore struct {
	bucket string

	mu      sync.RWMutex
	objects map[string]Object
}

type Object struct {
	Body        []byte
	ContentType string
}

func NewObjectStore(bucket string) *ObjectStore {
	return &ObjectStore{bucket: bucket, objects: make(map[string]Object)}
}

func (s *ObjectStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, domain.NotFound("Object %s not found", key)
	}
	return append([]byte(nil), obj.Body...), nil
}

func (s *ObjectStore) Store(_ context.Context, key string, body []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Body: append([]byte(nil), body...), ContentType: contentType}
	return s.URI(key), nil
}

func (s *ObjectStore) URI(key string) string {
	return "s3://" + s.bucket + "/" + key
}

// Object returns a stored object.
func (s *ObjectStore) Object(key string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}
