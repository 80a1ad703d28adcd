// Package registry maintains the known-paths bookkeeping around template
// expansion: which documents currently contain at least one reference, and
// which scripts have been successfully invoked at least once. Both are
// persistent sets with idempotent add/remove semantics, backed by SQLite.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the registry tables in the provided database. It
// is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const (
		schemaDocuments = `
CREATE TABLE IF NOT EXISTS template_documents (
    path TEXT NOT NULL PRIMARY KEY
);
`
		schemaScripts = `
CREATE TABLE IF NOT EXISTS known_scripts (
    path TEXT NOT NULL PRIMARY KEY
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaDocuments); err != nil {
		return fmt.Errorf("could not create documents schema: %w", err)
	}
	if _, err = tx.Exec(schemaScripts); err != nil {
		return fmt.Errorf("could not create scripts schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Registry is the persistent known-paths store. It holds prepared SQL
// statements for the small, hot set operations the expansion caller performs
// after every document rewrite.
type Registry struct {
	db                *sql.DB
	stmtAddDocument   *sql.Stmt
	stmtRemoveDoc     *sql.Stmt
	stmtListDocuments *sql.Stmt
	stmtAddScript     *sql.Stmt
	stmtRemoveScript  *sql.Stmt
	stmtListScripts   *sql.Stmt
	logger            *slog.Logger
}

// New creates a Registry over an initialized database, pre-compiling all
// statements. It returns an error if any preparation fails.
func New(db *sql.DB) (*Registry, error) {
	stmtAddDocument, err := db.Prepare(`INSERT OR IGNORE INTO template_documents (path) VALUES (?);`)
	if err != nil {
		return nil, err
	}

	stmtRemoveDoc, err := db.Prepare(`DELETE FROM template_documents WHERE path = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListDocuments, err := db.Prepare(`SELECT path FROM template_documents ORDER BY path;`)
	if err != nil {
		return nil, err
	}

	stmtAddScript, err := db.Prepare(`INSERT OR IGNORE INTO known_scripts (path) VALUES (?);`)
	if err != nil {
		return nil, err
	}

	stmtRemoveScript, err := db.Prepare(`DELETE FROM known_scripts WHERE path = ?;`)
	if err != nil {
		return nil, err
	}

	stmtListScripts, err := db.Prepare(`SELECT path FROM known_scripts ORDER BY path;`)
	if err != nil {
		return nil, err
	}

	return &Registry{
		db:                db,
		stmtAddDocument:   stmtAddDocument,
		stmtRemoveDoc:     stmtRemoveDoc,
		stmtListDocuments: stmtListDocuments,
		stmtAddScript:     stmtAddScript,
		stmtRemoveScript:  stmtRemoveScript,
		stmtListScripts:   stmtListScripts,
		logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared statements held by the Registry.
func (r *Registry) Close() {
	_ = r.stmtAddDocument.Close()
	_ = r.stmtRemoveDoc.Close()
	_ = r.stmtListDocuments.Close()
	_ = r.stmtAddScript.Close()
	_ = r.stmtRemoveScript.Close()
	_ = r.stmtListScripts.Close()
}

// SetLogger sets the logger for the Registry. By default, all logs are discarded.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// AddDocument records that a document contains at least one reference.
func (r *Registry) AddDocument(ctx context.Context, path string) error {
	_, err := r.stmtAddDocument.ExecContext(ctx, path)
	return err
}

// RemoveDocument drops a document from the set. Removing an absent path is
// a no-op.
func (r *Registry) RemoveDocument(ctx context.Context, path string) error {
	_, err := r.stmtRemoveDoc.ExecContext(ctx, path)
	return err
}

// Documents returns the sorted paths of all documents known to contain
// references.
func (r *Registry) Documents(ctx context.Context) ([]string, error) {
	return r.listPaths(ctx, r.stmtListDocuments)
}

// AddScript records that a script resolved and was invoked.
func (r *Registry) AddScript(ctx context.Context, path string) error {
	_, err := r.stmtAddScript.ExecContext(ctx, path)
	return err
}

// RemoveScript drops a script from the known set. Removing an absent path
// is a no-op.
func (r *Registry) RemoveScript(ctx context.Context, path string) error {
	_, err := r.stmtRemoveScript.ExecContext(ctx, path)
	return err
}

// Scripts returns the sorted paths of all known scripts. This backs the
// insertion picker.
func (r *Registry) Scripts(ctx context.Context) ([]string, error) {
	return r.listPaths(ctx, r.stmtListScripts)
}

// Apply records one document's expansion outcome: the document's membership
// in the template-documents set, newly used scripts, and scripts reported
// for removal. All operations are idempotent set updates.
func (r *Registry) Apply(ctx context.Context, docPath string, hadReferences bool, used, removed []string) error {
	if hadReferences {
		if err := r.AddDocument(ctx, docPath); err != nil {
			return fmt.Errorf("failed to record document %s: %w", docPath, err)
		}
	} else {
		if err := r.RemoveDocument(ctx, docPath); err != nil {
			return fmt.Errorf("failed to drop document %s: %w", docPath, err)
		}
	}

	for _, p := range used {
		if err := r.AddScript(ctx, p); err != nil {
			return fmt.Errorf("failed to record script %s: %w", p, err)
		}
	}
	for _, p := range removed {
		if err := r.RemoveScript(ctx, p); err != nil {
			return fmt.Errorf("failed to drop script %s: %w", p, err)
		}
	}

	r.logger.DebugContext(ctx, "Registry updated",
		slog.String("document", docPath),
		slog.Bool("had_references", hadReferences),
		slog.Int("scripts_used", len(used)),
		slog.Int("scripts_removed", len(removed)),
	)
	return nil
}

func (r *Registry) listPaths(ctx context.Context, stmt *sql.Stmt) ([]string, error) {
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}
