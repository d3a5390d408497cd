package main

import (
	"encoding/json"
	"fmt"

	"github.com/Scobiform/fedi-follow-force-graph/internal/app"
	"github.com/Scobiform/fedi-follow-force-graph/internal/platform/version"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	userID    string
	instances bool
	indent    bool
}

func newRootCmd(load func() (graphBuilder, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "fedigraph",
		Short:         "Export the follower graph of a Mastodon account",
		SilenceUsage: true,
	}
	root.AddCommand(newExportCmd(load), newVersionCmd())
	return root
}

func newExportCmd(load func() (graphBuilder, error)) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the graph JSON for an account",
		Long: `Collects every follower and followed account of the given account
(the authenticated account when --user-id is omitted) and prints the
graph payload served at /api/graph.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			builder, err := load()
			if err != nil {
				return err
			}

			graph, err := builder.BuildGraph(cmd.Context(), app.GraphRequest{
				AccountID:     opts.userID,
				InstanceLinks: opts.instances,
			})
			if err != nil {
				return fmt.Errorf("failed to build graph: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if opts.indent {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(graph)
		},
	}

	cmd.Flags().StringVar(&opts.userID, "user-id", "", "account id to center the graph on")
	cmd.Flags().BoolVar(&opts.instances, "instances", false, "add instance nodes and links")
	cmd.Flags().BoolVar(&opts.indent, "indent", false, "indent the JSON output")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Get())
		},
	}
}
