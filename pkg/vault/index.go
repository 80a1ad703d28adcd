package vault

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// NoteInfo is the indexed metadata of a single note.
type NoteInfo struct {
	Path        string
	Title       string
	Tags        []string
	Frontmatter map[string]any
}

// Index is the queryable document-index capability handed to running
// scripts. It may be absent entirely, in which case scripts receive nil.
type Index interface {
	// Note returns the indexed metadata for a note by vault-relative path.
	Note(path string) (*NoteInfo, bool)

	// Paths returns the sorted vault-relative paths of all indexed notes.
	Paths() []string
}

// DocumentIndex scans a vault and indexes each note's YAML frontmatter.
// All methods are concurrent-safe.
type DocumentIndex struct {
	vault  *Vault
	logger *slog.Logger
	mu     sync.RWMutex
	notes  map[string]*NoteInfo
}

// NewDocumentIndex builds an index over the given vault and performs an
// initial scan.
func NewDocumentIndex(v *Vault, logger *slog.Logger) (*DocumentIndex, error) {
	ix := &DocumentIndex{
		vault:  v,
		logger: logger,
		notes:  map[string]*NoteInfo{},
	}
	if err := ix.Refresh(); err != nil {
		return nil, err
	}
	return ix, nil
}

// Refresh rescans the vault and rebuilds the index. Notes whose frontmatter
// fails to parse are indexed with empty metadata rather than dropped.
func (ix *DocumentIndex) Refresh() error {
	paths, err := ix.vault.Notes()
	if err != nil {
		return fmt.Errorf("index refresh failed: %w", err)
	}

	notes := make(map[string]*NoteInfo, len(paths))
	for _, p := range paths {
		text, err := ix.vault.ReadNote(p)
		if err != nil {
			ix.logger.Warn("Skipping unreadable note during index refresh", "path", p, "error", err)
			continue
		}
		notes[p] = indexNote(p, text, ix.logger)
	}

	ix.mu.Lock()
	ix.notes = notes
	ix.mu.Unlock()
	ix.logger.Info("Document index refreshed", "notes", len(notes))
	return nil
}

// Note implements Index.
func (ix *DocumentIndex) Note(p string) (*NoteInfo, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	info, ok := ix.notes[p]
	return info, ok
}

// Paths implements Index.
func (ix *DocumentIndex) Paths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	paths := make([]string, 0, len(ix.notes))
	for p := range ix.notes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// indexNote extracts a note's metadata from its leading YAML frontmatter
// block, if any. The title falls back to the filename stem.
func indexNote(p, text string, logger *slog.Logger) *NoteInfo {
	info := &NoteInfo{
		Path:        p,
		Title:       strings.TrimSuffix(path.Base(p), NoteExt),
		Frontmatter: map[string]any{},
	}

	fm, ok := frontmatterBlock(text)
	if !ok {
		return info
	}

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		logger.Warn("Ignoring malformed frontmatter", "path", p, "error", err)
		return info
	}
	info.Frontmatter = parsed

	if title, ok := parsed["title"].(string); ok && title != "" {
		info.Title = title
	}
	switch tags := parsed["tags"].(type) {
	case string:
		info.Tags = []string{tags}
	case []any:
		for _, t := range tags {
			if s, ok := t.(string); ok {
				info.Tags = append(info.Tags, s)
			}
		}
	}
	return info
}

// frontmatterBlock returns the YAML text between a leading "---" delimiter
// pair, if the note starts with one.
func frontmatterBlock(text string) (string, bool) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return "", false
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// Scoped wraps an index with a lazily-resolved "current document" accessor.
// Every other query passes through to the wrapped index unchanged. A nil
// underlying index yields a nil Scoped, preserving "index unavailable"
// semantics for scripts.
type Scoped struct {
	Index
	sourcePath string
}

// NewScoped decorates idx for scripts running against sourcePath.
func NewScoped(idx Index, sourcePath string) *Scoped {
	if idx == nil {
		return nil
	}
	return &Scoped{Index: idx, sourcePath: sourcePath}
}

// Current resolves the source document's metadata at access time, not at
// wrap time, so a script observes the index state of the moment it asks.
func (s *Scoped) Current() *NoteInfo {
	info, ok := s.Note(s.sourcePath)
	if !ok {
		return &NoteInfo{Path: s.sourcePath, Frontmatter: map[string]any{}}
	}
	return info
}
