package expansion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"text/template"

	"github.com/mvanholl/vellum/pkg/vault"
)

var (
	// ErrNotFound is the deterministic failure produced when an invoked
	// script has no backing resource.
	ErrNotFound = errors.New("template not found")

	// ErrOutputLimit is produced when a script's rendered output exceeds
	// the configured cap.
	ErrOutputLimit = errors.New("script output exceeds configured limit")

	// ErrDepthLimit is produced when recursive invocation or module loading
	// exceeds the configured depth bound.
	ErrDepthLimit = errors.New("recursion depth limit exceeded")
)

// scriptError tags a contained failure with the error-kind rendered into the
// in-document marker.
type scriptError struct {
	kind string
	err  error
}

func (e *scriptError) Error() string { return e.err.Error() }
func (e *scriptError) Unwrap() error { return e.err }

// scriptData is the variable contract a running script sees: the reference's
// argument mapping as Input and the (possibly nil) document-index accessor
// as Index, scoped so that Current resolves lazily against the source note.
type scriptData struct {
	Input map[string]any
	Index *vault.Scoped
}

// Sandbox compiles and renders a script's text against a fixed set of
// injected variables and functions, isolating runtime failures per
// invocation. Scripts are Go text/template bodies; beyond the data contract
// they receive a module loader (load), a recursive template invoker
// (invoke), and the dict/list helpers for composing invoke arguments.
type Sandbox struct {
	logger   *slog.Logger
	vault    *vault.Vault
	resolver *Resolver
	index    vault.Index
	config   *Config
}

// NewSandbox creates a Sandbox over a vault. The index may be nil when the
// document-index collaborator is unavailable; scripts then see a nil Index.
func NewSandbox(logger *slog.Logger, v *vault.Vault, index vault.Index, config *Config) *Sandbox {
	if config == nil {
		config = DefaultConfig()
	}
	return &Sandbox{
		logger:   logger,
		vault:    v,
		resolver: NewResolver(v, logger),
		index:    index,
		config:   config,
	}
}

// Invoke renders a script and contains every failure: a parse error, render
// error, panic or not-found stand-in is caught at this boundary and
// converted to a one-line error marker in the document's own marker syntax,
// so a failing script never aborts the caller's batch.
func (s *Sandbox) Invoke(ctx context.Context, script *Script, sourcePath string, args map[string]any) string {
	out, err := s.Render(ctx, script, sourcePath, args)
	if err == nil {
		return out
	}

	kind := "render error"
	var se *scriptError
	switch {
	case errors.Is(err, ErrNotFound):
		kind = "template not found"
	case errors.As(err, &se):
		kind = se.kind
	}

	s.logger.Warn("Script invocation failed",
		slog.String("source", sourcePath),
		slog.String("script", script.ScriptPath),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	return ErrorMarker(kind, err.Error())
}

// Render renders a script without containment, returning the raw error.
// Successful output has its trailing newline trimmed; empty output means
// the caller should skip insertion entirely.
func (s *Sandbox) Render(ctx context.Context, script *Script, sourcePath string, args map[string]any) (string, error) {
	return s.render(ctx, script.ScriptPath, script.SourceText, sourcePath, path.Dir(script.ResolvedPath), args, 1, 0)
}

func (s *Sandbox) render(ctx context.Context, name, sourceText, sourcePath, baseDir string, args map[string]any, invokeDepth, loadDepth int) (out string, err error) {
	if err = ctx.Err(); err != nil {
		return "", err
	}

	// A script can panic through a template func; that is a runtime failure
	// like any other and must not unwind into the engine.
	defer func() {
		if r := recover(); r != nil {
			err = &scriptError{kind: "script panic", err: fmt.Errorf("panic rendering %s: %v", name, r)}
		}
	}()

	tmpl, err := template.New(name).
		Funcs(s.funcs(ctx, sourcePath, baseDir, invokeDepth, loadDepth)).
		Parse(sourceText)
	if err != nil {
		return "", &scriptError{kind: "parse error", err: err}
	}

	var buf bytes.Buffer
	w := &capWriter{buf: &buf, remaining: s.config.MaxOutputBytes}
	if err = tmpl.Execute(w, scriptData{Input: args, Index: vault.NewScoped(s.index, sourcePath)}); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// funcs builds the per-invocation function surface. The loader closure is
// re-created with an updated base directory for every nested load, rather
// than mutating shared resolution state.
func (s *Sandbox) funcs(ctx context.Context, sourcePath, baseDir string, invokeDepth, loadDepth int) template.FuncMap {
	return template.FuncMap{
		"load": func(modulePath string) (string, error) {
			if loadDepth >= s.config.MaxLoadDepth {
				return "", fmt.Errorf("%w: load depth %d", ErrDepthLimit, loadDepth)
			}
			resolved, ok := s.vault.ResolveIn(baseDir, modulePath)
			if !ok {
				return "", fmt.Errorf("%w: %s", ErrNotFound, modulePath)
			}
			text, err := s.vault.ReadResource(resolved)
			if err != nil {
				return "", err
			}
			return s.render(ctx, resolved, text, sourcePath, path.Dir(resolved), nil, invokeDepth, loadDepth+1)
		},

		"invoke": func(scriptPath string, extra ...map[string]any) (string, error) {
			if invokeDepth >= s.config.MaxInvokeDepth {
				return "", fmt.Errorf("%w: invoke depth %d", ErrDepthLimit, invokeDepth)
			}
			var in map[string]any
			if len(extra) > 0 {
				in = extra[0]
			}
			script := s.resolver.Resolve(sourcePath, scriptPath)
			return s.render(ctx, script.ScriptPath, script.SourceText, sourcePath, path.Dir(script.ResolvedPath), in, invokeDepth+1, loadDepth)
		},

		"dict": dict,
		"list": list,

		"notfound": func(scriptPath string) (string, error) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, scriptPath)
		},

		"fail": func(msg string) (string, error) {
			return "", errors.New(msg)
		},
	}
}

// capWriter enforces the rendered-output byte cap mid-execution, so a
// runaway script fails instead of buffering unbounded text.
type capWriter struct {
	buf       *bytes.Buffer
	remaining int
}

func (w *capWriter) Write(p []byte) (int, error) {
	if len(p) > w.remaining {
		return 0, ErrOutputLimit
	}
	w.remaining -= len(p)
	return w.buf.Write(p)
}

func dict(pairs ...any) (map[string]any, error) {
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("dict requires an even number of arguments, got %d", len(pairs))
	}
	m := make(map[string]any, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", pairs[i])
		}
		m[key] = pairs[i+1]
	}
	return m, nil
}

func list(items ...any) []any {
	return items
}
