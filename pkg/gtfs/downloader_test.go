package gtfs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.zip")
	require.NoError(t, os.WriteFile(path, []byte("zip-bytes"), 0o644))

	d := NewDownloader(path, testLogger())
	assert.False(t, d.IsRemote())

	data, err := d.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("zip-bytes"), data)
}

func TestFetchMissingFile(t *testing.T) {
	_, err := NewDownloader(filepath.Join(t.TempDir(), "missing.zip"), testLogger()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestFetchRemote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.zip" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "transitcat/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("remote-bytes"))
	}))
	defer server.Close()

	d := NewDownloader(server.URL+"/feed.zip", testLogger())
	assert.True(t, d.IsRemote())

	data, err := d.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("remote-bytes"), data)

	_, err = NewDownloader(server.URL+"/other.zip", testLogger()).Fetch(context.Background())
	assert.Error(t, err)
}
