// Package vault implements the file-storage collaborator for the expansion
// engine: reading and writing notes, enumerating the managed documents of a
// directory tree, resolving script paths relative to a source note, and a
// frontmatter-backed document index.
package vault

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
)

// NoteExt is the file extension of managed documents.
const NoteExt = ".md"

// Vault is rooted at a single directory. All paths exchanged with a Vault
// are vault-relative and slash-separated, regardless of platform.
type Vault struct {
	root   string
	logger *slog.Logger
}

// New opens a vault rooted at the given directory. The directory must exist.
func New(root string, logger *slog.Logger) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", abs)
	}
	return &Vault{root: abs, logger: logger}, nil
}

// Root returns the vault's absolute root directory.
func (v *Vault) Root() string {
	return v.root
}

// abs converts a vault-relative slash path to an absolute filesystem path,
// rejecting paths that escape the root.
func (v *Vault) abs(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("empty vault path")
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

// ReadNote returns the full text of a note by vault-relative path.
func (v *Vault) ReadNote(rel string) (string, error) {
	return v.ReadResource(rel)
}

// WriteNote replaces a note's full text. The write is atomic: the new text
// is materialized to a temporary file and renamed into place, so a note is
// never observable in a partially-written state.
func (v *Vault) WriteNote(rel, text string) error {
	p, err := v.abs(rel)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(p, strings.NewReader(text)); err != nil {
		return fmt.Errorf("failed to write note %s: %w", rel, err)
	}
	v.logger.Debug("Note written", "path", rel, "bytes", len(text))
	return nil
}

// ReadResource returns the text of any backing resource (note or script) by
// vault-relative path.
func (v *Vault) ReadResource(rel string) (string, error) {
	p, err := v.abs(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

// Exists reports whether a vault-relative path has a backing regular file.
func (v *Vault) Exists(rel string) bool {
	p, err := v.abs(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Notes enumerates every managed document under the root, returning sorted
// vault-relative slash paths.
func (v *Vault) Notes() ([]string, error) {
	var notes []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), NoteExt) {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		notes = append(notes, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate notes: %w", err)
	}
	sort.Strings(notes)
	return notes, nil
}

// Resolve maps a script path to a concrete vault-relative path, using the
// source note's directory as the base for relative resolution and falling
// back to the vault root. It reports whether a backing resource exists; a
// missing target is not an error.
func (v *Vault) Resolve(sourcePath, scriptPath string) (string, bool) {
	return v.ResolveIn(path.Dir(sourcePath), scriptPath)
}

// ResolveIn resolves a script path against an explicit base directory. The
// module loader uses this to re-base nested loads on each loaded file's own
// directory.
func (v *Vault) ResolveIn(baseDir, scriptPath string) (string, bool) {
	scriptPath = strings.TrimSpace(filepath.ToSlash(scriptPath))
	if scriptPath == "" {
		return "", false
	}

	if strings.HasPrefix(scriptPath, "/") {
		rel := strings.TrimPrefix(path.Clean(scriptPath), "/")
		return rel, v.Exists(rel)
	}

	rel := path.Join(baseDir, scriptPath)
	if v.Exists(rel) {
		return rel, true
	}

	rel = path.Clean(scriptPath)
	if v.Exists(rel) {
		v.logger.Debug("Resolved script at vault root", "base", baseDir, "script", scriptPath)
		return rel, true
	}
	return rel, false
}
