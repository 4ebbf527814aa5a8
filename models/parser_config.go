// models/parser_config.go
package models

import (
	"encoding/json"
	"fmt"
)

// ParserConfig is the declarative extraction configuration stored with a job.
// It is validated when the job is upserted, never at run time.
type ParserConfig struct {
	// Selectors maps a field name to a selector. The selector dialect depends on the
	// source type: CSS or XPath for html, JMESPath for json, XPath for xml, a column
	// header for csv.
	Selectors map[string]string `json:"selectors,omitempty"`
	// RecordSelector scopes one record to each match. Empty means fields are zipped
	// by match index (html/xml) or the document root is used (json).
	RecordSelector string `json:"record_selector,omitempty"`
	// IDField names the field holding the source-provided external identifier.
	IDField string `json:"id_field,omitempty"`

	Pagination  *Pagination     `json:"pagination,omitempty"`
	DataMapping *DataMapping    `json:"data_mapping,omitempty"`
	Request     *RequestOptions `json:"request,omitempty"`
}

// DataMapping describes how extracted fields land in the content store.
type DataMapping struct {
	PostType   string            `json:"post_type,omitempty"`
	MetaFields map[string]string `json:"meta_fields,omitempty"` // meta key -> field
	Taxonomies map[string]string `json:"taxonomies,omitempty"`  // taxonomy -> field
	Geo        *GeoMapping       `json:"geo,omitempty"`
}

// GeoMapping names the fields carrying coordinates.
type GeoMapping struct {
	Latitude    string `json:"latitude,omitempty"`
	Longitude   string `json:"longitude,omitempty"`
	Coordinates string `json:"coordinates,omitempty"` // "lat, lng" in one field
}

// RequestOptions customises the HTTP request. Header values expand ${ENV_VAR}.
type RequestOptions struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// PaginationType tags the pagination variant.
type PaginationType string

const (
	PaginationNumbered PaginationType = "numbered"
	PaginationLoadMore PaginationType = "load_more"
)

// PaginationStrategy is implemented by NumberedPagination and LoadMorePagination.
type PaginationStrategy interface {
	Type() PaginationType
	// Limit is the maximum number of pages (including the first) to fetch.
	Limit() int
	// Trigger is the selector locating the "next" link or "load more" control.
	Trigger() string
}

// NumberedPagination follows a "next" link up to MaxPages pages.
type NumberedPagination struct {
	Selector string `json:"selector"`
	MaxPages int    `json:"max_pages"`
}

func (NumberedPagination) Type() PaginationType { return PaginationNumbered }
func (p NumberedPagination) Limit() int         { return p.MaxPages }
func (p NumberedPagination) Trigger() string    { return p.Selector }

// LoadMorePagination repeats the fetch while the load-more control is present.
// The next URL comes from the control's href/data-url attribute when it has one,
// otherwise Param (default "page") is incremented on the base URL.
type LoadMorePagination struct {
	Selector      string `json:"selector"`
	Param         string `json:"param,omitempty"`
	MaxIterations int    `json:"max_iterations"`
}

func (LoadMorePagination) Type() PaginationType { return PaginationLoadMore }
func (p LoadMorePagination) Limit() int         { return p.MaxIterations }
func (p LoadMorePagination) Trigger() string    { return p.Selector }

// PageParam is the query parameter incremented between iterations.
func (p LoadMorePagination) PageParam() string {
	if p.Param == "" {
		return "page"
	}
	return p.Param
}

// Pagination wraps the active strategy and (de)serialises it with a "type" tag.
type Pagination struct {
	Strategy PaginationStrategy
}

type paginationWire struct {
	Type          PaginationType `json:"type"`
	Selector      string         `json:"selector"`
	Param         string         `json:"param,omitempty"`
	MaxPages      int            `json:"max_pages,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Pagination) MarshalJSON() ([]byte, error) {
	switch s := p.Strategy.(type) {
	case NumberedPagination:
		return json.Marshal(paginationWire{Type: PaginationNumbered, Selector: s.Selector, MaxPages: s.MaxPages})
	case LoadMorePagination:
		return json.Marshal(paginationWire{Type: PaginationLoadMore, Selector: s.Selector, Param: s.Param, MaxIterations: s.MaxIterations})
	case nil:
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unsupported pagination strategy %T", p.Strategy)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pagination) UnmarshalJSON(data []byte) error {
	var w paginationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case PaginationNumbered:
		p.Strategy = NumberedPagination{Selector: w.Selector, MaxPages: w.MaxPages}
	case PaginationLoadMore:
		p.Strategy = LoadMorePagination{Selector: w.Selector, Param: w.Param, MaxIterations: w.MaxIterations}
	default:
		return NewError(KindInvalidConfiguration, fmt.Sprintf("unknown pagination type %q", w.Type), nil)
	}
	return nil
}

// PostType is the entity type records are stored as, "unknown" when unmapped.
func (c ParserConfig) PostType() string {
	if c.DataMapping != nil && c.DataMapping.PostType != "" {
		return c.DataMapping.PostType
	}
	return "unknown"
}

// PageLimit returns how many pages a job may fetch in one run.
func (c ParserConfig) PageLimit() int {
	if c.Pagination == nil || c.Pagination.Strategy == nil {
		return 1
	}
	if n := c.Pagination.Strategy.Limit(); n > 0 {
		return n
	}
	return 1
}
