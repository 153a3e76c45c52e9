package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestDetectKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want Kind
	}{
		{"https://example.com/paper.pdf", KindPDF},
		{"https://example.com/paper.PDF?dl=1", KindPDF},
		{"http://example.com/blog/post", KindWeb},
		{"https://example.com/", KindWeb},
		{"reports/q3.pdf", KindPDF},
		{"/tmp/notes.md", KindText},
		{"notes.txt", KindText},
		{"ftp://example.com/file.pdf", KindPDF},
		{"README", KindText},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DetectKind(tc.ref), "ref %q", tc.ref)
	}
}

func TestExtract_TextFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\nhello"), 0o600))

	text, err := New(nil, nil).Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Notes\nhello", text)
}

func TestExtract_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Extract(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, rag.ErrExtraction)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_EmptyRef(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil).Extract(context.Background(), "  ")
	assert.ErrorIs(t, err, rag.ErrExtraction)
}

func TestExtract_TooLarge(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, make([]byte, 64), 0o600))

	_, err := New(&Config{MaxBytes: 32}, nil).Extract(context.Background(), path)
	assert.ErrorIs(t, err, rag.ErrExtraction)
}

func TestExtract_CorruptPDF(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o600))

	_, err := New(nil, nil).Extract(context.Background(), path)
	assert.ErrorIs(t, err, rag.ErrExtraction)
}

func TestExtract_Web(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "docqa-go")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><script>var x = 1;</script></head><body>
<nav>Menu</nav>
<article><h1>Title</h1><p>Hello <b>world</b></p></article>
<footer>Copyright</footer>
</body></html>`))
	}))
	defer srv.Close()

	text, err := New(nil, nil).Extract(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, text, "# Title")
	assert.Contains(t, text, "Hello **world**")
	assert.NotContains(t, text, "Menu")
	assert.NotContains(t, text, "Copyright")
	assert.NotContains(t, text, "var x")
}

func TestExtract_WebStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(nil, nil).Extract(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, rag.ErrExtraction)
	assert.Contains(t, err.Error(), "404")
}

func TestHTMLToMarkdown_FallsBackToBody(t *testing.T) {
	t.Parallel()

	text, err := HTMLToMarkdown([]byte(`<html><body><h2>Section</h2><p>Body text.</p></body></html>`), "")
	require.NoError(t, err)
	assert.Contains(t, text, "## Section")
	assert.Contains(t, text, "Body text.")
}

// newRootedDocs lays out root/docs/guide.md plus a secret file beside root
// and returns (root, secret path).
func newRootedDocs(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "guide.md"), []byte("# Guide\ninside"), 0o600))
	secret := filepath.Join(base, "id_rsa")
	require.NoError(t, os.WriteFile(secret, []byte("PRIVATE KEY"), 0o600))
	return root, secret
}

func TestExtract_RootAllowsDocumentsInside(t *testing.T) {
	t.Parallel()

	root, _ := newRootedDocs(t)
	e := New(&Config{Root: root}, nil)

	for _, ref := range []string{"sub/guide.md", filepath.Join(root, "sub", "guide.md"), "sub/../sub/guide.md"} {
		text, err := e.Extract(context.Background(), ref)
		require.NoError(t, err, "ref %q", ref)
		assert.Equal(t, "# Guide\ninside", text)
	}
}

func TestExtract_RootRefusesOutsidePaths(t *testing.T) {
	t.Parallel()

	root, secret := newRootedDocs(t)
	e := New(&Config{Root: root}, nil)

	for _, ref := range []string{secret, "../id_rsa", "sub/../../id_rsa", "/etc/passwd"} {
		text, err := e.Extract(context.Background(), ref)
		assert.ErrorIs(t, err, rag.ErrInvalidParameter, "ref %q", ref)
		assert.NotErrorIs(t, err, rag.ErrExtraction, "ref %q", ref)
		assert.Empty(t, text)
	}
}

func TestExtract_RootRefusesSymlinkEscape(t *testing.T) {
	t.Parallel()

	root, secret := newRootedDocs(t)
	link := filepath.Join(root, "sub", "innocent.md")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := New(&Config{Root: root}, nil).Extract(context.Background(), "sub/innocent.md")
	assert.ErrorIs(t, err, rag.ErrInvalidParameter)
}

func TestExtract_RootMissingFileInside(t *testing.T) {
	t.Parallel()

	root, _ := newRootedDocs(t)
	_, err := New(&Config{Root: root}, nil).Extract(context.Background(), "sub/absent.md")
	assert.ErrorIs(t, err, rag.ErrExtraction)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtract_RemoteOnly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><article><p>remote text</p></article></body></html>`))
	}))
	defer srv.Close()

	root, _ := newRootedDocs(t)
	e := New(&Config{Root: root, RemoteOnly: true}, nil)

	_, err := e.Extract(context.Background(), "sub/guide.md")
	assert.ErrorIs(t, err, rag.ErrInvalidParameter)
	_, err = e.Extract(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, rag.ErrInvalidParameter)

	text, err := e.Extract(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Contains(t, text, "remote text")
}

func TestWithin(t *testing.T) {
	t.Parallel()

	assert.True(t, within("/srv/docs", "/srv/docs"))
	assert.True(t, within("/srv/docs", "/srv/docs/a/b.md"))
	assert.False(t, within("/srv/docs", "/srv/docs-private/b.md"))
	assert.False(t, within("/srv/docs", "/srv"))
	assert.True(t, within("/", "/etc/passwd"))
}
