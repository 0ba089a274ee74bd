package artworks

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/huykn/query-cache/cache"
)

const (
	// StaleTime is how long every artwork query stays fresh.
	StaleTime = time.Hour

	// ListLimit is the page size of the collection listing.
	ListLimit = 25

	// RelatedLimit is how many artworks of the same style are requested.
	RelatedLimit = 13
)

// ListKey is the key of the collection listing.
func ListKey() cache.Key {
	return cache.Key{"artwork-list"}
}

// DetailsKey is the key of one artwork's details.
func DetailsKey(id int) cache.Key {
	return cache.Key{"artwork-details", id}
}

// RelatedKey is the key of the artworks related to id.
func RelatedKey(id int) cache.Key {
	return cache.Key{"artwork-related-artworks", id}
}

// NewListQuery follows the first page of the collection.
func NewListQuery(ctx context.Context, c *cache.QueryCache, api API) (*cache.Query[*Page], error) {
	return cache.NewQuery(ctx, c, cache.QueryOptions[*Page]{
		Key: ListKey,
		Fetch: func(ctx context.Context, _ cache.Key) (*Page, error) {
			return api.List(ctx, PaginationParams{Page: 1, Limit: ListLimit})
		},
		StaleTime: StaleTime,
	})
}

// NewDetailsQuery follows the details of the artwork id returns. Call
// Recompute on the query after the id changes.
func NewDetailsQuery(ctx context.Context, c *cache.QueryCache, api API, id func() int) (*cache.Query[*ArtworkDetails], error) {
	return cache.NewQuery(ctx, c, cache.QueryOptions[*ArtworkDetails]{
		Key: func() cache.Key { return DetailsKey(id()) },
		Fetch: func(ctx context.Context, key cache.Key) (*ArtworkDetails, error) {
			return api.Get(ctx, key[1].(int))
		},
		StaleTime: StaleTime,
	})
}

// NewRelatedQuery follows artworks sharing the first style of the artwork
// id returns. Every fetch forces a refresh of details first so it never
// works from stale details.
func NewRelatedQuery(ctx context.Context, c *cache.QueryCache, api API, details *cache.Query[*ArtworkDetails], id func() int) (*cache.Query[*Page], error) {
	return cache.NewQuery(ctx, c, cache.QueryOptions[*Page]{
		Key: func() cache.Key { return RelatedKey(id()) },
		Fetch: func(ctx context.Context, _ cache.Key) (*Page, error) {
			artwork, err := details.Refresh(ctx, true)
			if err != nil {
				return nil, err
			}
			if artwork == nil || len(artwork.StyleIDs) == 0 {
				return nil, fmt.Errorf("%w: %d", ErrNoStyle, artworkID(artwork))
			}
			related, err := api.Search(ctx, SearchParams{
				PaginationParams: PaginationParams{Limit: RelatedLimit},
				Query: map[string]any{
					"term": map[string]any{"style_id": artwork.StyleIDs[0]},
				},
			})
			if err != nil {
				return nil, err
			}
			out := *related
			out.Data = slices.DeleteFunc(slices.Clone(related.Data), func(a Artwork) bool {
				return a.ID == artwork.ID
			})
			return &out, nil
		},
		StaleTime: StaleTime,
	})
}

func artworkID(a *ArtworkDetails) int {
	if a == nil {
		return 0
	}
	return a.ID
}
