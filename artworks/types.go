package artworks

// Config is the API's own configuration block, returned with every response.
type Config struct {
	IIIFURL    string `json:"iiif_url"`
	WebsiteURL string `json:"website_url"`
}

// LicenseInfo is the license block of a response.
type LicenseInfo struct {
	LicenseText  string   `json:"license_text"`
	LicenseLinks []string `json:"license_links"`
	Version      string   `json:"version"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total       int    `json:"total"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
	TotalPages  int    `json:"total_pages"`
	CurrentPage int    `json:"current_page"`
	NextURL     string `json:"next_url,omitempty"`
}

// Thumbnail is the low quality preview of an artwork image.
type Thumbnail struct {
	LQIP    string `json:"lqip"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	AltText string `json:"alt_text"`
}

// Color is the dominant color of an artwork in HSL.
type Color struct {
	H          int     `json:"h"`
	L          int     `json:"l"`
	S          int     `json:"s"`
	Percentage float64 `json:"percentage"`
	Population int     `json:"population"`
}

// Artwork is the card-level information of an artwork.
type Artwork struct {
	ID               int        `json:"id"`
	Title            string     `json:"title"`
	ImageID          string     `json:"image_id"`
	ImageURL         string     `json:"image_url,omitempty"`
	Thumbnail        *Thumbnail `json:"thumbnail"`
	DateDisplay      string     `json:"date_display"`
	ArtistDisplay    string     `json:"artist_display"`
	ArtistTitles     []string   `json:"artist_titles"`
	PlaceOfOrigin    string     `json:"place_of_origin"`
	Description      string     `json:"description"`
	ShortDescription string     `json:"short_description"`
	Dimensions       string     `json:"dimensions"`
	Color            *Color     `json:"color"`
	TermTitles       []string   `json:"term_titles"`
}

// ArtworkDetails is everything the details page shows.
type ArtworkDetails struct {
	Artwork
	CopyrightNotice     string   `json:"copyright_notice"`
	ArtistIDs           []int    `json:"artist_ids"`
	MediumDisplay       string   `json:"medium_display"`
	Inscriptions        string   `json:"inscriptions"`
	CreditLine          string   `json:"credit_line"`
	MainReferenceNumber string   `json:"main_reference_number"`
	PublicationHistory  []string `json:"publication_history"`
	ProvenanceText      string   `json:"provenance_text"`
	ExhibitionHistory   []string `json:"exhibition_history"`
	StyleIDs            []string `json:"style_ids"`
	IsPublicDomain      bool     `json:"is_public_domain"`
}

// Page is one page of artworks.
type Page struct {
	Data       []Artwork   `json:"data"`
	Pagination Pagination  `json:"pagination"`
	Info       LicenseInfo `json:"info"`
	Config     Config      `json:"config"`
}

// ImageRef pairs an artwork with its image URL. ImageURL is empty when the
// artwork has no image.
type ImageRef struct {
	ID       int    `json:"id"`
	ImageID  string `json:"image_id"`
	ImageURL string `json:"image_url"`
}

// PaginationParams selects a page. Zero values use the API defaults.
type PaginationParams struct {
	Page  int
	Limit int
}

// SearchParams is a full text search, an Elasticsearch query, or both.
type SearchParams struct {
	PaginationParams
	Q     string
	Query any
}
