package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvanholl/vellum/pkg/expansion"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Source string
	Args   []string
}

// NewInsertCommand creates the insert command: the "build one reference"
// helper behind an insertion UI. It composes the resolver and sandbox
// directly for a single ad hoc invocation and prints the complete block —
// opening marker, generated body, terminator — ready to paste into a note.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <script>",
		Short: "Render a single reference block for insertion",
		Long: `Resolve and invoke one template script ad hoc and print the full
reference block it would produce in a note.

Example:
  vellum insert greet.tmpl --arg name=Nate --source daily/today.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(cmd.Context(), opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Source, "source", "", "note path used as the base for relative resolution")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "script argument as key=value (repeatable)")

	return cmd
}

func runInsert(ctx context.Context, opts *InsertOptions, scriptPath string) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	keys, args, err := parseArgFlags(opts.Args)
	if err != nil {
		return err
	}
	args[expansion.ArgTemplateKey] = scriptPath

	resolver := expansion.NewResolver(a.vault, a.logger)
	script := resolver.Resolve(opts.Source, scriptPath)
	body := a.engine.Sandbox().Invoke(ctx, script, opts.Source, args)

	fmt.Println(expansion.Marker(scriptPath, keys, args))
	if body != "" {
		fmt.Println(body)
	}
	fmt.Println(expansion.TerminatorMarker)

	if script.Found {
		if err = a.registry.AddScript(ctx, scriptPath); err != nil {
			return fmt.Errorf("failed to record script %s: %w", scriptPath, err)
		}
	}
	return nil
}

// parseArgFlags turns repeated key=value flags into an argument mapping,
// preserving the order keys were given in for marker rendering.
func parseArgFlags(raw []string) ([]string, map[string]any, error) {
	var keys []string
	args := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("invalid --arg %q: expected key=value", kv)
		}
		if _, dup := args[key]; !dup {
			keys = append(keys, key)
		}
		args[key] = value
	}
	return keys, args, nil
}
