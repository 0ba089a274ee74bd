package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huykn/query-cache/artworks"
	"github.com/huykn/query-cache/cache"
)

func newInvalidateCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "invalidate [list | details <id> | related <id>]",
		Short: "Announce that cached queries are stale",
		Long: `Announce that cached queries are stale.

With redis.addr configured, every artquery process listening on the
invalidation channel refetches the queries it is observing.`,
		Example: `  artquery invalidate list
  artquery invalidate details 27992
  artquery invalidate --all`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if all {
				if err := e.client.InvalidateAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Invalidated all queries")
				return nil
			}

			key, err := invalidationKey(args)
			if err != nil {
				return err
			}
			if err := e.client.Invalidate(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %s\n", key)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "invalidate every query")

	return cmd
}

func invalidationKey(args []string) (cache.Key, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected list, details <id> or related <id>")
	}
	switch args[0] {
	case "list":
		return artworks.ListKey(), nil
	case "details", "related":
		if len(args) != 2 {
			return nil, fmt.Errorf("%s needs an artwork id", args[0])
		}
		id, err := parseID(args[1])
		if err != nil {
			return nil, err
		}
		if args[0] == "details" {
			return artworks.DetailsKey(id), nil
		}
		return artworks.RelatedKey(id), nil
	default:
		return nil, fmt.Errorf("unknown query %q", args[0])
	}
}
