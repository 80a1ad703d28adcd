package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// ExpandOptions holds flags for the expand command.
type ExpandOptions struct {
	*RootOptions
	DryRun bool
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExpandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "expand [note...]",
		Short: "Expand template references in notes",
		Long: `Expand every template reference in the given notes, or in every note
of the vault when no paths are given. Each note's rewritten text is written
back atomically, and only when it actually changed.

Example:
  vellum expand
  vellum expand daily/2026-08-29.md --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.Context(), opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report changes without writing anything back")

	return cmd
}

func runExpand(ctx context.Context, opts *ExpandOptions, paths []string) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	if len(paths) == 0 {
		paths, err = a.vault.Notes()
		if err != nil {
			return err
		}
	}

	// One correlation id per batch run, so a note's log lines can be tied
	// back to the run that rewrote it.
	logger := a.logger.With(slog.String("run_id", uuid.NewString()))

	var changed, withRefs int
	for _, p := range paths {
		text, err := a.vault.ReadNote(p)
		if err != nil {
			return fmt.Errorf("failed to read note %s: %w", p, err)
		}

		result := a.engine.Expand(ctx, text, p)
		if result.HadReferences {
			withRefs++
		}

		if !opts.DryRun {
			if err = a.registry.Apply(ctx, p, result.HadReferences, result.UsedScripts, result.RemovedScripts); err != nil {
				return err
			}
		}

		if result.Text == text {
			continue
		}
		changed++

		if opts.DryRun {
			logger.Info("Note would change", "note", p)
			continue
		}
		if err = a.vault.WriteNote(p, result.Text); err != nil {
			return err
		}
		logger.Info("Note rewritten",
			slog.String("note", p),
			slog.Int("scripts_used", len(result.UsedScripts)),
			slog.Int("scripts_removed", len(result.RemovedScripts)),
		)
	}

	logger.Info("Expansion finished",
		slog.Int("notes", len(paths)),
		slog.Int("with_references", withRefs),
		slog.Int("changed", changed),
		slog.Bool("dry_run", opts.DryRun),
	)
	return nil
}
