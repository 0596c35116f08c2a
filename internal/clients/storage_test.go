package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetURL_AbsoluteAndRelative(t *testing.T) {
	dir := t.TempDir()

	c, err := NewLocalStorage(dir, "/files", "http://example.com:8060/")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:8060/files/a.xlsx", c.GetURL("a.xlsx"))

	c2, err := NewLocalStorage(dir, "files", "")
	require.NoError(t, err)
	assert.Equal(t, "/files/b.xlsx", c2.GetURL("b.xlsx"))
}

func TestPath_RejectsTraversal(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	for _, name := range []string{"", "../etc/passwd", "a/b.xlsx", ".hidden"} {
		_, err := c.Path(name)
		assert.Error(t, err, name)
	}
	_, err = c.Path("0a1b_R-2026-1.xlsx")
	assert.NoError(t, err)
}

func TestOriginalName(t *testing.T) {
	assert.Equal(t, "R-2026-1.xlsx", OriginalName("0a1b2c_R-2026-1.xlsx"))
	assert.Equal(t, "plain.xlsx", OriginalName("plain.xlsx"))
}

func TestSave_CancelledContext(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Save(ctx, "I-2026-1.xlsx", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadAndServe(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	content := []byte("hello world")
	url, err := c.Upload(context.Background(), content, "c1/R-2026-1.xlsx", "application/octet-stream")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/files/"), url)
	assert.True(t, strings.HasSuffix(url, "_R-2026-1.xlsx"), url)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file := strings.TrimPrefix(r.URL.Path, "/files/")
		path, err := c.Path(file)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+OriginalName(file)+`"`)
		http.ServeFile(w, r, path)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL + url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="R-2026-1.xlsx"`)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}
