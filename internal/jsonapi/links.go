package jsonapi

import (
	"net/url"
	"strconv"

	"github.com/DataDog/jsonapi"
)

// PaginationLinks builds self, first, prev, next and last links for an
// offset window over total rows. Other query parameters of u are kept.
func PaginationLinks(u *url.URL, limit, offset, total int) *jsonapi.Link {
	if limit < 1 {
		limit = 1
	}
	lastOffset := 0
	if total > 0 {
		lastOffset = ((total - 1) / limit) * limit
	}

	links := &jsonapi.Link{
		Self:  pageURL(u, limit, offset),
		First: pageURL(u, limit, 0),
		Last:  pageURL(u, limit, lastOffset),
	}

	if offset > 0 {
		prev := offset - limit
		if prev < 0 {
			prev = 0
		}
		links.Prev = pageURL(u, limit, prev)
	}

	if offset+limit < total {
		links.Next = pageURL(u, limit, offset+limit)
	}

	return links
}

func pageURL(u *url.URL, limit, offset int) string {
	page := *u
	q := page.Query()
	q.Set("page[limit]", strconv.Itoa(limit))
	q.Set("page[offset]", strconv.Itoa(offset))
	page.RawQuery = q.Encode()
	return page.RequestURI()
}
