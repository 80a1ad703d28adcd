package expansion

import (
	"fmt"
	"log/slog"

	"github.com/mvanholl/vellum/pkg/vault"
)

// Script is a resolved, loaded, but not-yet-rendered script resource. It is
// resolved fresh for every invocation and discarded afterwards; there is no
// caching across invocations.
type Script struct {
	// ScriptPath is the path as written in the reference. It is the
	// canonical identifier for known-script bookkeeping.
	ScriptPath string

	// ResolvedPath is the vault-relative path of the backing resource, when
	// one exists. Nested loads are based on its directory.
	ResolvedPath string

	// SourceText is the script's raw text. When Found is false it is a
	// stand-in that deterministically fails at render time, so the sandbox's
	// uniform containment path produces a visible in-document marker.
	SourceText string

	// Found reports whether a concrete backing resource existed at
	// resolution time.
	Found bool
}

// Resolver maps script paths to Script resources inside a vault.
type Resolver struct {
	vault  *vault.Vault
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given vault.
func NewResolver(v *vault.Vault, logger *slog.Logger) *Resolver {
	return &Resolver{vault: v, logger: logger}
}

// Resolve looks up the backing resource for scriptPath, using sourcePath as
// the base for relative resolution. A missing target never raises: the
// returned Script has Found false and an erroring stand-in body.
func (r *Resolver) Resolve(sourcePath, scriptPath string) *Script {
	resolved, ok := r.vault.Resolve(sourcePath, scriptPath)
	if !ok {
		r.logger.Debug("Script has no backing resource", "source", sourcePath, "script", scriptPath)
		return notFoundScript(scriptPath)
	}

	text, err := r.vault.ReadResource(resolved)
	if err != nil {
		// The resource vanished between the existence check and the read.
		r.logger.Warn("Failed to read script resource", "script", scriptPath, "resolved", resolved, "error", err)
		return notFoundScript(scriptPath)
	}

	return &Script{
		ScriptPath:   scriptPath,
		ResolvedPath: resolved,
		SourceText:   text,
		Found:        true,
	}
}

func notFoundScript(scriptPath string) *Script {
	return &Script{
		ScriptPath: scriptPath,
		SourceText: fmt.Sprintf("{{notfound %q}}", scriptPath),
		Found:      false,
	}
}
