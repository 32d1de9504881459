package storage_test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/storage"
	"github.com/hugh/chimeo/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestCheckImage(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantExt string
		wantErr bool
	}{
		{"png", pngHeader, ".png", false},
		{"gif", []byte("GIF89a......"), ".gif", false},
		{"text", []byte("hello world"), "", true},
		{"empty", nil, "", true},
		{"too large", append(append([]byte{}, pngHeader...), make([]byte, storage.MaxImageBytes)...), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ext, err := storage.CheckImage(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "organizations/first-church/logo.png", storage.LogoKey("first-church", ".png"))
	k := storage.AlertImageKey("first-church", ".jpg")
	assert.True(t, strings.HasPrefix(k, "organizations/first-church/alerts/"))
	assert.True(t, strings.HasSuffix(k, ".jpg"))

	key, ok := storage.KeyFromURL("https://cdn.example.com/", "https://cdn.example.com/organizations/x/logo.png")
	assert.True(t, ok)
	assert.Equal(t, "organizations/x/logo.png", key)

	_, ok = storage.KeyFromURL("https://cdn.example.com", "https://elsewhere.com/a.png")
	assert.False(t, ok)
}

func TestMemory(t *testing.T) {
	m := storage.NewMemory("")
	ctx := testContext(t)

	url, err := m.Upload(ctx, "a/b.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "memory://chimeo/a/b.png", url)

	data, ok := m.Get("a/b.png")
	require.True(t, ok)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, m.Delete(ctx, "a/b.png"))
	_, ok = m.Get("a/b.png")
	assert.False(t, ok)
}

func TestNew_Drivers(t *testing.T) {
	s, err := storage.New(testContext(t), config.StorageConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &storage.Memory{}, s)

	_, err = storage.New(testContext(t), config.StorageConfig{Driver: "floppy"})
	assert.Error(t, err)
}

// fakeS3 accepts path-style PUT and DELETE requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256") {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_UploadDelete(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s, err := storage.NewS3(testContext(t), storage.S3Options{
		Bucket:          "chimeo-media",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	url, err := s.Upload(testContext(t), "organizations/x/logo.png", pngHeader, "image/png")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/chimeo-media/organizations/x/logo.png", url)

	fake.mu.Lock()
	assert.True(t, bytes.Equal(pngHeader, fake.objects["/chimeo-media/organizations/x/logo.png"]))
	assert.Equal(t, "image/png", fake.types["/chimeo-media/organizations/x/logo.png"])
	fake.mu.Unlock()

	require.NoError(t, s.Delete(testContext(t), "organizations/x/logo.png"))
	fake.mu.Lock()
	assert.Empty(t, fake.objects)
	fake.mu.Unlock()
}
