package artworks

import (
	"context"
	"errors"
	"sync"

	"github.com/huykn/query-cache/cache"
	"github.com/huykn/query-cache/codec"
	"github.com/huykn/query-cache/urlsync"
)

// SearchLimit is the page size of search results.
const SearchLimit = 12

// Filters are the search filters kept in the query string.
type Filters struct {
	IsPublicDomain *bool    `query:"is_public_domain" json:"is_public_domain,omitempty"`
	PlaceIDs       string   `query:"place_ids" json:"place_ids,omitempty"`
	DateRange      []string `query:"date_range" json:"date_range,omitempty"`
}

// searchKey is the second segment of a search key.
type searchKey struct {
	Q       string  `json:"q"`
	Filters Filters `json:"filters"`
	Page    int     `json:"page"`
	Limit   int     `json:"limit"`
}

// Search is the search page state: the text, page and filters live in the
// query string and the results follow them.
type Search struct {
	Text    *urlsync.Value[string]
	Page    *urlsync.Value[int]
	Filters *urlsync.Object[Filters]
	Results *cache.Query[*Page]

	scope     *urlsync.Scope
	closeOnce sync.Once
	cancels   []func()

	mu  sync.Mutex
	err error
}

// SearchKey is the key of the results for the given inputs.
func SearchKey(q string, filters Filters, page int) cache.Key {
	return cache.Key{"artwork-search", searchKey{Q: q, Filters: filters, Page: page, Limit: SearchLimit}}
}

// NewSearch binds q, page and the filters on scope and subscribes to the
// results. While the next page loads, the previous results stay visible.
func NewSearch(ctx context.Context, scope *urlsync.Scope, c *cache.QueryCache, api API) (*Search, error) {
	s := &Search{scope: scope}

	var err error
	if s.Text, err = urlsync.BindValue(scope, "q", "", codec.String()); err != nil {
		return nil, err
	}
	if s.Page, err = urlsync.BindValue(scope, "page", 1, codec.Value[int]{DeleteIfFunc: codec.DeleteAtMost(1)}); err != nil {
		s.Text.Close()
		return nil, err
	}
	if s.Filters, err = urlsync.BindObject(scope, Filters{}, codec.Object[Filters]{}); err != nil {
		s.Text.Close()
		s.Page.Close()
		return nil, err
	}

	s.Results, err = cache.NewQuery(ctx, c, cache.QueryOptions[*Page]{
		Key: func() cache.Key {
			return SearchKey(s.Text.Get(), s.Filters.Get(), s.Page.Get())
		},
		Fetch: func(ctx context.Context, key cache.Key) (*Page, error) {
			k := key[1].(searchKey)
			return api.Search(ctx, SearchParams{
				PaginationParams: PaginationParams{Page: k.Page, Limit: k.Limit},
				Q:                k.Q,
				Query:            filterQuery(k.Filters),
			})
		},
		StaleTime: StaleTime,
		PlaceholderData: func(prev *Page, ok bool) (*Page, bool) {
			return prev, ok
		},
	})
	if err != nil {
		s.Text.Close()
		s.Page.Close()
		s.Filters.Close()
		return nil, err
	}

	recompute := func() {
		_, err := s.Results.Recompute(ctx)
		if errors.Is(err, cache.ErrCacheClosed) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}
	// One navigation or batch moves several bindings; the key is read once
	// they have all settled.
	s.cancels = append(s.cancels, scope.OnSettle(recompute))
	return s, nil
}

// Err returns the error of the last key switch, if it failed.
func (s *Search) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// HasNextPage reports whether the results have a page after the current one.
func (s *Search) HasNextPage() bool {
	state := s.Results.State()
	return state.HasData && state.Data != nil && s.Page.Get() < state.Data.Pagination.TotalPages
}

// NextPage moves to the next page if there is one.
func (s *Search) NextPage() error {
	if !s.HasNextPage() {
		return nil
	}
	return s.Page.Update(func(p int) int { return p + 1 })
}

// HasPreviousPage reports whether the current page is past the first.
func (s *Search) HasPreviousPage() bool {
	state := s.Results.State()
	return state.HasData && s.Page.Get() > 1
}

// PreviousPage moves to the previous page if there is one.
func (s *Search) PreviousPage() error {
	if s.Page.Get() <= 1 {
		return nil
	}
	return s.Page.Update(func(p int) int { return p - 1 })
}

// ResetFilters clears every filter and goes back to the first page with a
// single navigation.
func (s *Search) ResetFilters() error {
	var err error
	s.scope.Batch(func() {
		if err = s.Filters.Reset(); err != nil {
			return
		}
		err = s.Page.Set(1)
	})
	return err
}

// Close drops the bindings and the results subscription.
func (s *Search) Close() {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
		s.Results.Close()
		s.Text.Close()
		s.Page.Close()
		s.Filters.Close()
	})
}

// filterQuery turns filters into an Elasticsearch bool query, or nil when
// no filter is set.
func filterQuery(f Filters) any {
	var clauses []any
	if f.IsPublicDomain != nil {
		clauses = append(clauses, map[string]any{"term": map[string]any{"is_public_domain": *f.IsPublicDomain}})
	}
	if f.PlaceIDs != "" {
		clauses = append(clauses, map[string]any{"term": map[string]any{"place_id": f.PlaceIDs}})
	}
	if len(f.DateRange) == 2 {
		clauses = append(clauses, map[string]any{"range": map[string]any{
			"date_start": map[string]any{"gte": f.DateRange[0]},
			"date_end":   map[string]any{"lte": f.DateRange[1]},
		}})
	}
	if len(clauses) == 0 {
		return nil
	}
	return map[string]any{"bool": map[string]any{"filter": clauses}}
}
