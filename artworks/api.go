// Package artworks is the data layer of the Art Institute of Chicago browser:
// the API capability, a network simulator and the queries built on the
// query cache.
package artworks

import (
	"context"
	"errors"
	"fmt"
)

// API is the fetch capability the queries depend on. Implementations are
// stateless; caching and deduplication belong to the query cache.
type API interface {
	// List returns one page of the collection.
	List(ctx context.Context, params PaginationParams) (*Page, error)

	// Get returns the details of one artwork.
	Get(ctx context.Context, id int) (*ArtworkDetails, error)

	// Search runs a search.
	Search(ctx context.Context, params SearchParams) (*Page, error)

	// ImageURLs returns a small image URL for every id.
	ImageURLs(ctx context.Context, ids []int) ([]ImageRef, error)
}

var (
	// ErrNetwork is returned by Simulated for a simulated failure.
	ErrNetwork = errors.New("network error")

	// ErrNoStyle is returned when related artworks are asked for an artwork
	// without a style.
	ErrNoStyle = errors.New("artwork has no style")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("artworks: status %d", e.StatusCode)
	}
	return fmt.Sprintf("artworks: status %d: %s", e.StatusCode, e.Message)
}

// ImageURL builds a IIIF URL for imageID at the largest served width below
// maxWidth, never under 200. A non-positive maxWidth means 843.
func ImageURL(iiifURL, imageID string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = 843
	}
	return fmt.Sprintf("%s/%s/full/%d,/0/default.jpg", iiifURL, imageID, closestSize(maxWidth))
}

// closestSize maps size onto the served widths 200, 400, 600 and 843.
func closestSize(size int) int {
	switch {
	case size > 843:
		return 843
	case size > 600:
		return 600
	case size > 400:
		return 400
	default:
		return 200
	}
}
