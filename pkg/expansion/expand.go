package expansion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mvanholl/vellum/pkg/vault"
)

// Result is the outcome of expanding one document.
type Result struct {
	// Text is the full rewritten document text. When HadReferences is false
	// it is the input text, byte for byte.
	Text string

	// UsedScripts holds the paths of scripts that resolved to a backing
	// resource and were invoked (successfully or with a contained failure),
	// in first-use order without duplicates.
	UsedScripts []string

	// RemovedScripts holds the paths of scripts that no longer resolve and
	// should be dropped from known-script bookkeeping.
	RemovedScripts []string

	// HadReferences reports whether the document contained any reference at
	// all; the caller uses it to maintain the documents-with-templates set.
	HadReferences bool
}

// Engine orchestrates parser, resolver and sandbox over whole documents.
// References are processed strictly in the order they appear, one at a time,
// so a later reference's recursive invocations observe a consistent world.
type Engine struct {
	logger  *slog.Logger
	sandbox *Sandbox
	config  *Config
}

// NewEngine creates an expansion engine over a vault. The index may be nil.
func NewEngine(logger *slog.Logger, v *vault.Vault, index vault.Index, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		logger:  logger,
		sandbox: NewSandbox(logger, v, index, config),
		config:  config,
	}
}

// Sandbox exposes the engine's sandbox for ad hoc single invocations, such
// as an insertion command building one reference outside a full rewrite.
func (e *Engine) Sandbox() *Sandbox {
	return e.sandbox
}

// Expand rewrites every template reference in a document and returns the
// full replacement text together with the used/removed script path sets.
// The rewrite is a single forward pass over the line sequence the references
// were parsed from: every line is copied verbatim, each reference's fresh
// body (plus a terminator) is emitted right after its opening marker, and
// the old generated span is skipped. Re-running Expand on its own output
// therefore regenerates bodies instead of duplicating them.
//
// A single reference's failure never aborts the rewrite: an unresolved
// script inserts no body, a runtime failure inserts one inline error marker,
// and the walk continues either way.
func (e *Engine) Expand(ctx context.Context, text, sourcePath string) Result {
	refs := ParseReferences(text, sourcePath)
	if len(refs) == 0 {
		return Result{Text: text}
	}

	byStart := make(map[int]*TemplateReference, len(refs))
	for _, ref := range refs {
		byStart[ref.LineStart] = ref
	}

	var (
		out     []string
		used    pathSet
		removed pathSet
	)

	lines := splitLines(text)
	for i := 0; i < len(lines); i++ {
		out = append(out, lines[i])

		ref, ok := byStart[i]
		if !ok {
			continue
		}

		script := e.sandbox.resolver.Resolve(ref.SourcePath, ref.ScriptPath)

		var body string
		if script.Found {
			body = e.sandbox.Invoke(ctx, script, sourcePath, ref.Args)
			used.add(ref.ScriptPath)
		} else {
			removed.add(ref.ScriptPath)
		}

		e.logger.Debug("Expanded reference",
			slog.String("source", sourcePath),
			slog.String("script", ref.ScriptPath),
			slog.Int("line", ref.LineStart),
			slog.Bool("found", script.Found),
			slog.Int("body_bytes", len(body)),
		)

		if body != "" {
			out = append(out, splitLines(body)...)
		}
		// Keep the marker pair well-formed: a terminator follows whenever a
		// body was inserted or the original span already had one.
		if body != "" || ref.HasEnd {
			out = append(out, TerminatorMarker)
		}
		if ref.HasEnd {
			// Drop the old generated body and old terminator line. An
			// unterminated reference has no span to drop; its following
			// text is not consumed.
			i = ref.LineEnd
		}
	}

	return Result{
		Text:           strings.Join(out, "\n"),
		UsedScripts:    used.paths,
		RemovedScripts: removed.paths,
		HadReferences:  true,
	}
}

// pathSet is an insertion-ordered string set.
type pathSet struct {
	paths []string
	seen  map[string]struct{}
}

func (s *pathSet) add(p string) {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[p]; ok {
		return
	}
	s.seen[p] = struct{}{}
	s.paths = append(s.paths, p)
}
