package jsonapi

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

// filterPattern matches query parameters like filter[key]
var filterPattern = regexp.MustCompile(`^filter\[([^\]]+)\]$`)

// Filter is one filter[key]=value parameter
type Filter struct {
	Key   string
	Value string
}

// SortField is one member of the sort parameter
type SortField struct {
	Attribute string
	Direction string
}

// Params holds the parsed query parameters of a request
type Params struct {
	Filters []Filter
	Sort    []SortField
	Include []string

	Limit  int
	Offset int
}

// ParseParams parses filter, sort, include and page parameters. Limit
// defaults to defaultLimit and is capped at maxLimit.
func ParseParams(r *http.Request, defaultLimit, maxLimit int) (*Params, error) {
	values := r.URL.Query()

	p := &Params{
		Filters: ParseFilter(values),
		Sort:    ParseSort(values),
		Include: splitList(values.Get("include")),
		Limit:   defaultLimit,
	}

	if raw := values.Get("page[limit]"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, badParameter("page[limit]", "page[limit] must be a positive integer")
		}
		p.Limit = n
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	if raw := values.Get("page[offset]"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, badParameter("page[offset]", "page[offset] must be a non-negative integer")
		}
		p.Offset = n
	}

	return p, nil
}

// ParseFilter collects filter[key] parameters sorted by key, so that
// queries are built in a stable order
func ParseFilter(values url.Values) []Filter {
	filters := make([]Filter, 0)
	for key, vals := range values {
		matches := filterPattern.FindStringSubmatch(key)
		if len(matches) != 2 || len(vals) == 0 {
			continue
		}
		filters = append(filters, Filter{Key: matches[1], Value: vals[0]})
	}
	sort.Slice(filters, func(i, j int) bool { return filters[i].Key < filters[j].Key })
	return filters
}

// ParseSort parses the sort parameter. A "-" prefix selects descending order.
// Example: ?sort=-created_at,title
func ParseSort(values url.Values) []SortField {
	parts := splitList(values.Get("sort"))
	fields := make([]SortField, 0, len(parts))
	for _, part := range parts {
		if strings.HasPrefix(part, "-") {
			fields = append(fields, SortField{Attribute: part[1:], Direction: "DESC"})
			continue
		}
		fields = append(fields, SortField{Attribute: part, Direction: "ASC"})
	}
	return fields
}

// ParseComparison splits an optional >=, <=, > or < prefix off a filter
// value. Without a prefix the comparison is equality.
func ParseComparison(value string) (query.Operator, string) {
	for _, prefix := range []string{">=", "<=", ">", "<"} {
		if strings.HasPrefix(value, prefix) {
			op, _ := query.ParseOperator(prefix)
			return op, value[len(prefix):]
		}
	}
	return query.OpEqual, value
}

// splitList splits a comma separated parameter, dropping empty members
func splitList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
