package artworks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the artworks endpoint of the public API.
	DefaultBaseURL = "https://api.artic.edu/api/v1/artworks"

	// DefaultUserAgent identifies the client through the AIC-User-Agent header.
	DefaultUserAgent = "query-cache (query-cache@example.com)"
)

const (
	cardFields    = "id,title,artist_display,artist_titles,thumbnail,image_id,date_display,description,place_of_origin,dimensions,short_description,color,term_titles"
	detailsFields = cardFields + ",copyright_notice,artist_ids,medium_display,inscriptions,credit_line,main_reference_number,publication_history,provenance_text,exhibition_history,style_ids,is_public_domain"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the Art Institute of Chicago API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

var _ API = (*Client)(nil)

// NewClient creates a Client. Zero options use the public API.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

// List returns one page of the collection. Page defaults to 1 and limit to 25.
func (c *Client) List(ctx context.Context, params PaginationParams) (*Page, error) {
	if params.Page <= 0 {
		params.Page = 1
	}
	if params.Limit <= 0 {
		params.Limit = 25
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(params.Page))
	q.Set("limit", strconv.Itoa(params.Limit))
	q.Set("fields", cardFields)

	var page Page
	if err := c.do(ctx, http.MethodGet, "/", q, nil, &page); err != nil {
		return nil, err
	}
	for i := range page.Data {
		withImageURL(&page.Data[i], page.Config.IIIFURL, thumbnailWidth(page.Data[i].Thumbnail))
	}
	return &page, nil
}

// Get returns the details of one artwork. Histories are split into
// paragraphs.
func (c *Client) Get(ctx context.Context, id int) (*ArtworkDetails, error) {
	q := url.Values{}
	q.Set("fields", detailsFields)

	var resp struct {
		Data struct {
			ArtworkDetails
			PublicationHistory *string `json:"publication_history"`
			ExhibitionHistory  *string `json:"exhibition_history"`
		} `json:"data"`
		Config Config `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+strconv.Itoa(id), q, nil, &resp); err != nil {
		return nil, err
	}

	details := resp.Data.ArtworkDetails
	details.PublicationHistory = paragraphs(resp.Data.PublicationHistory)
	details.ExhibitionHistory = paragraphs(resp.Data.ExhibitionHistory)
	withImageURL(&details.Artwork, resp.Config.IIIFURL, thumbnailWidth(details.Thumbnail))
	return &details, nil
}

// Search posts a search. Page defaults to 1 and limit to 10.
func (c *Client) Search(ctx context.Context, params SearchParams) (*Page, error) {
	body := map[string]any{
		"page":   1,
		"limit":  10,
		"fields": cardFields,
	}
	if params.Page > 0 {
		body["page"] = params.Page
	}
	if params.Limit > 0 {
		body["limit"] = params.Limit
	}
	if params.Q != "" {
		body["q"] = params.Q
	}
	if params.Query != nil {
		body["query"] = params.Query
	}

	var page Page
	if err := c.do(ctx, http.MethodPost, "/search", nil, body, &page); err != nil {
		return nil, err
	}
	for i := range page.Data {
		withImageURL(&page.Data[i], page.Config.IIIFURL, 0)
	}
	return &page, nil
}

// ImageURLs returns a small image URL for every id.
func (c *Client) ImageURLs(ctx context.Context, ids []int) ([]ImageRef, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	q := url.Values{}
	q.Set("ids", strings.Join(parts, ","))
	q.Set("fields", "id,image_id")

	var resp struct {
		Data   []ImageRef `json:"data"`
		Config Config     `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/", q, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Data {
		if resp.Data[i].ImageID != "" {
			resp.Data[i].ImageURL = ImageURL(resp.Config.IIIFURL, resp.Data[i].ImageID, 400)
		}
	}
	return resp.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("AIC-User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var parsed struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.Unmarshal(respBody, &parsed) == nil {
			if parsed.Detail != "" {
				statusErr.Message = parsed.Detail
			} else if parsed.Error != "" {
				statusErr.Message = parsed.Error
			}
		}
		return statusErr
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("artworks: decode %s %s: %w", method, path, err)
	}
	return nil
}

func withImageURL(a *Artwork, iiifURL string, width int) {
	if a.ImageID == "" || iiifURL == "" {
		return
	}
	a.ImageURL = ImageURL(iiifURL, a.ImageID, width)
}

func thumbnailWidth(t *Thumbnail) int {
	if t == nil {
		return 0
	}
	return t.Width
}

func paragraphs(s *string) []string {
	if s == nil {
		return []string{}
	}
	return strings.Split(*s, "\n\n")
}
