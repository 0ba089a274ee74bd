package main

import (
	"github.com/spf13/cobra"

	"github.com/huykn/query-cache/artworks"
)

func newListCmd() *cobra.Command {
	var repeat int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the first page of the collection",
		Example: `  artquery list
  artquery list --repeat 3 --delay 1s    # later reads are served from the cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			for i := 0; i < max(repeat, 1); i++ {
				q, err := artworks.NewListQuery(cmd.Context(), e.client.Cache(), e.api)
				if err != nil {
					return err
				}
				page, took, err := waitFor(cmd.Context(), q)
				q.Close()
				if err != nil {
					return err
				}
				if i == 0 {
					printArtworks(cmd.OutOrStdout(), page.Data)
				}
				printStats(cmd.OutOrStdout(), took, e.client.Stats())
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&repeat, "repeat", 1, "read the list this many times")

	return cmd
}
