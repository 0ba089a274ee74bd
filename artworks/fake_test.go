package artworks

import (
	"context"
	"fmt"
	"sync"
)

// fakeAPI serves canned artworks and records every call.
type fakeAPI struct {
	mu       sync.Mutex
	details  map[int]*ArtworkDetails
	pages    int
	searches []SearchParams
	gets     []int
	lists    int
	getErr   error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{details: make(map[int]*ArtworkDetails), pages: 3}
}

func (f *fakeAPI) List(ctx context.Context, params PaginationParams) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return &Page{
		Data:       []Artwork{{ID: 1, Title: "one"}, {ID: 2, Title: "two"}},
		Pagination: Pagination{TotalPages: f.pages, CurrentPage: params.Page, Limit: params.Limit},
	}, nil
}

func (f *fakeAPI) Get(ctx context.Context, id int) (*ArtworkDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	if f.getErr != nil {
		return nil, f.getErr
	}
	d, ok := f.details[id]
	if !ok {
		return nil, &StatusError{StatusCode: 404}
	}
	out := *d
	return &out, nil
}

func (f *fakeAPI) Search(ctx context.Context, params SearchParams) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, params)
	return &Page{
		Data: []Artwork{
			{ID: 10, Title: fmt.Sprintf("%s@%d", params.Q, params.Page)},
			{ID: 27992, Title: "self"},
			{ID: 11},
		},
		Pagination: Pagination{TotalPages: f.pages, CurrentPage: params.Page, Limit: params.Limit},
	}, nil
}

func (f *fakeAPI) ImageURLs(ctx context.Context, ids []int) ([]ImageRef, error) {
	refs := make([]ImageRef, len(ids))
	for i, id := range ids {
		refs[i] = ImageRef{ID: id}
	}
	return refs, nil
}

func (f *fakeAPI) searchCalls() []SearchParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SearchParams(nil), f.searches...)
}

func (f *fakeAPI) getCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.gets...)
}
