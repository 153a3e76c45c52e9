package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// localPath applies the extractor's local document policy to ref and
// returns the path to open. Refusals wrap rag.ErrInvalidParameter.
func (e *Extractor) localPath(ref string) (string, error) {
	if e.cfg.RemoteOnly {
		return "", fmt.Errorf("%w: extract: local documents are disabled, use an http(s) URL", rag.ErrInvalidParameter)
	}
	if e.cfg.Root == "" {
		return ref, nil
	}
	return confineToRoot(e.cfg.Root, ref)
}

// confineToRoot resolves ref against root and returns the cleaned path when
// it stays inside root. Relative references are joined to root. Symlinks
// are followed, so a link pointing out of root is refused like a "../"
// traversal. A missing file inside root is returned unresolved for the
// caller's open to report.
func confineToRoot(root, ref string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: extract: document root %q: %w", rag.ErrInvalidParameter, root, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("%w: extract: document root %q: %w", rag.ErrInvalidParameter, root, err)
	}

	target := ref
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)
	if !within(absRoot, target) && !within(realRoot, target) {
		return "", outsideRoot(ref)
	}

	resolved, err := filepath.EvalSymlinks(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return target, nil
	case err != nil:
		return "", fmt.Errorf("%w: extract %s: %w", rag.ErrExtraction, ref, err)
	}
	if !within(realRoot, resolved) {
		return "", outsideRoot(ref)
	}
	return resolved, nil
}

// within reports whether path is root or lies beneath it. Both must be
// clean absolute paths.
func within(root, path string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

func outsideRoot(ref string) error {
	return fmt.Errorf("%w: extract: %s is outside the document root", rag.ErrInvalidParameter, ref)
}
