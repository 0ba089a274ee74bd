package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huykn/query-cache/artworks"
	"github.com/huykn/query-cache/location"
)

func newSearchCmd() *cobra.Command {
	var (
		query string
		next  int
	)

	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Search the collection",
		Long: `Search the collection.

The search state lives in a query string, the way a browser address bar
would hold it. Filters and paging read from and write back to it.`,
		Example: `  artquery search monet
  artquery search --query 'q=monet&is_public_domain=true&page=2'
  artquery search monet --next 2          # walk two pages forward`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			loc, err := location.ParseMemory(query)
			if err != nil {
				return fmt.Errorf("parse query string: %w", err)
			}
			scope, err := e.client.NewScope(loc)
			if err != nil {
				return err
			}
			defer scope.Close()

			search, err := artworks.NewSearch(cmd.Context(), scope, e.client.Cache(), e.api)
			if err != nil {
				return err
			}
			defer search.Close()

			if len(args) == 1 {
				scope.Batch(func() {
					err = setText(search, args[0])
				})
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for i := 0; ; i++ {
				page, took, err := waitFor(cmd.Context(), search.Results)
				if err != nil {
					return err
				}
				scope.Flush()
				fmt.Fprintf(out, "?%s  page %d of %d\n", loc.String(), search.Page.Get(), page.Pagination.TotalPages)
				printArtworks(out, page.Data)
				printStats(out, took, e.client.Stats())

				if i >= next || !search.HasNextPage() {
					break
				}
				if err := search.NextPage(); err != nil {
					return err
				}
				if err := search.Err(); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "initial query string")
	cmd.Flags().IntVar(&next, "next", 0, "move forward this many pages")

	return cmd
}

// setText changes the search text and goes back to the first page.
func setText(s *artworks.Search, text string) error {
	if err := s.Text.Set(text); err != nil {
		return err
	}
	return s.Page.Set(1)
}
