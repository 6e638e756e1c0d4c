// Package apptest holds in-memory doubles of app interfaces for tests in
// other packages.
package apptest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
)

type storedObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryStore is an app.ObjectStore kept in a map.
type MemoryStore struct {
	mu        sync.Mutex
	objects   map[string]storedObject
	UploadErr error
	DeleteErr error
	Uploads   int
	Deletes   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]storedObject)}
}

func (m *MemoryStore) UploadFile(_ context.Context, key string, object io.Reader, _ int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uploads++
	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := io.ReadAll(object)
	if err != nil {
		return err
	}
	m.objects[key] = storedObject{data: data, contentType: contentType, modified: time.Now()}
	return nil
}

func (m *MemoryStore) PublicURL(key string) string {
	return "https://storage.test/user-images/" + key
}

func (m *MemoryStore) PresignedURL(_ context.Context, key string, expires time.Duration) (string, error) {
	return fmt.Sprintf("https://storage.test/user-images/%s?expires=%d", key, int(expires.Seconds())), nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes = append(m.Deletes, key)
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) ListObjects(_ context.Context, prefix string, extensions ...string) ([]app.ObjectEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]app.ObjectEntry, 0)
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) || !hasExtension(key, extensions) {
			continue
		}
		result = append(result, app.ObjectEntry{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// Put stores an object with an explicit modification time.
func (m *MemoryStore) Put(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = storedObject{data: data, modified: modified}
}

func (m *MemoryStore) Get(key string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj.data, obj.contentType, ok
}

func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func hasExtension(key string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	for _, ext := range extensions {
		if strings.HasSuffix(strings.ToLower(key), "."+strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
