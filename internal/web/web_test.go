package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(t.TempDir()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(body))
}

func TestFeedServing(t *testing.T) {
	dir := t.TempDir()
	content := "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "IS1200--0123456789abcdef.ics"), []byte(content), 0o644))

	srv := httptest.NewServer(NewServer(dir).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/feeds/IS1200--0123456789abcdef.ics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/calendar; charset=utf-8", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, string(body))
}

func TestNoDirectoryListing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "IS1200--0123456789abcdef.ics"), []byte("x"), 0o644))

	srv := httptest.NewServer(NewServer(dir).Handler())
	defer srv.Close()

	for _, path := range []string{"/feeds/", "/feeds"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.NotContains(t, string(body), "0123456789abcdef", path)
	}
}

func TestUnknownFeedIsNotFound(t *testing.T) {
	srv := httptest.NewServer(NewServer(t.TempDir()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/feeds/IS1200--ffffffffffffffff.ics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
