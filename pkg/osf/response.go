// Package osf decodes OSF API v2 listings and exposes a registration's or
// node's wiki as a paginated source of named content locators.
package osf

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/osf-archiver/pkg/pagination"
)

// ErrMalformedResponse is returned when a listing does not have the shape
// the archiver relies on.
var ErrMalformedResponse = errors.New("malformed OSF response")

// Meta carries the pagination counters of a listing.
type Meta struct {
	Total   *int `json:"total"`
	PerPage *int `json:"per_page"`
}

// ListLinks are the top-level links of a listing.
type ListLinks struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`

	// Meta is where API version 2.0 reports the counters.
	Meta *Meta `json:"meta"`
}

// WikiAttributes are the attributes of a wiki resource.
type WikiAttributes struct {
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Size             int64  `json:"size"`
	Path             string `json:"path"`
	MaterializedPath string `json:"materialized_path"`
	DateModified     string `json:"date_modified"`
	ContentType      string `json:"content_type"`
}

// WikiLinks are the links of a wiki resource.
type WikiLinks struct {
	Info     string `json:"info"`
	Download string `json:"download"`
}

// Wiki is one wiki resource of a listing.
type Wiki struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Attributes WikiAttributes `json:"attributes"`
	Links      WikiLinks      `json:"links"`
}

// WikiList is one page of a wiki listing.
type WikiList struct {
	Data  []Wiki    `json:"data"`
	Links ListLinks `json:"links"`
	Meta  *Meta     `json:"meta"`
}

// counters returns the listing's meta, preferring the top-level object.
func (l *WikiList) counters() *Meta {
	if l.Meta != nil && l.Meta.Total != nil {
		return l.Meta
	}
	return l.Links.Meta
}

// DecodeWikiList parses one listing page into a pagination.Page.
//
// Counters are required only when the page links to a next one; a page
// with next set but no usable counters, or a non-positive page size, is
// malformed.
func DecodeWikiList(body []byte, pageNum int) (*pagination.Page, error) {
	var list WikiList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrMalformedResponse, pageNum, err)
	}

	page := &pagination.Page{
		Number:  pageNum,
		Items:   make([]pagination.Item, 0, len(list.Data)),
		HasNext: list.Links.Next != nil && *list.Links.Next != "",
	}

	for i, w := range list.Data {
		if w.Links.Download == "" {
			return nil, fmt.Errorf("%w: page %d: wiki %d (%q) has no download link", ErrMalformedResponse, pageNum, i, w.ID)
		}
		page.Items = append(page.Items, pagination.Item{
			Name:    w.Attributes.Name,
			Locator: w.Links.Download,
		})
	}

	meta := list.counters()
	if meta != nil && meta.Total != nil {
		page.Total = *meta.Total
	}
	if meta != nil && meta.PerPage != nil {
		page.PerPage = *meta.PerPage
	}

	if page.HasNext {
		if meta == nil || meta.Total == nil || meta.PerPage == nil {
			return nil, fmt.Errorf("%w: page %d links to a next page but has no total/per_page", ErrMalformedResponse, pageNum)
		}
		if page.PerPage <= 0 {
			return nil, fmt.Errorf("%w: page %d reports per_page=%d", ErrMalformedResponse, pageNum, page.PerPage)
		}
	}

	return page, nil
}
