package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ScriptsOptions holds flags for the scripts command.
type ScriptsOptions struct {
	*RootOptions
	Documents bool
}

// NewScriptsCommand creates the scripts command. Its output feeds the
// picker any insertion UI presents over known script paths.
func NewScriptsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScriptsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scripts",
		Short: "List known script paths",
		Long: `List every script path that has been successfully invoked at least
once, one per line. With --documents, list the notes currently known to
contain template references instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScripts(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Documents, "documents", false, "list documents with references instead of scripts")

	return cmd
}

func runScripts(ctx context.Context, opts *ScriptsOptions) error {
	a, err := newApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	var paths []string
	if opts.Documents {
		paths, err = a.registry.Documents(ctx)
	} else {
		paths, err = a.registry.Scripts(ctx)
	}
	if err != nil {
		return err
	}

	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
