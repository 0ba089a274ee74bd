package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/huykn/query-cache/artworks"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show <id>",
		Short:   "Show the details of an artwork",
		Example: `  artquery show 27992`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			q, err := artworks.NewDetailsQuery(cmd.Context(), e.client.Cache(), e.api, func() int { return id })
			if err != nil {
				return err
			}
			defer q.Close()

			details, took, err := waitFor(cmd.Context(), q)
			if err != nil {
				return err
			}
			printDetails(cmd.OutOrStdout(), details)
			printStats(cmd.OutOrStdout(), took, e.client.Stats())
			return nil
		},
	}
}

func newRelatedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "related <id>",
		Short: "List artworks sharing the first style of an artwork",
		Long: `List artworks sharing the first style of an artwork.

The related query always refetches the artwork details first, so the style
it searches for is never stale.`,
		Example: `  artquery related 27992`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			idFn := func() int { return id }
			details, err := artworks.NewDetailsQuery(cmd.Context(), e.client.Cache(), e.api, idFn)
			if err != nil {
				return err
			}
			defer details.Close()

			related, err := artworks.NewRelatedQuery(cmd.Context(), e.client.Cache(), e.api, details, idFn)
			if err != nil {
				return err
			}
			defer related.Close()

			page, took, err := waitFor(cmd.Context(), related)
			if err != nil {
				return err
			}
			printArtworks(cmd.OutOrStdout(), page.Data)
			printStats(cmd.OutOrStdout(), took, e.client.Stats())
			return nil
		},
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid artwork id %q", s)
	}
	return id, nil
}
