package api

import (
	"net/http"
	"net/url"
	"strconv"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 200
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageParams reads "limit" and "offset". Missing, malformed and
// non-positive values fall back to defaultPageLimit and 0; limit is capped
// at maxPageLimit.
func pageParams(q url.Values) (limit, offset int) {
	limit = positiveInt(q.Get("limit"), defaultPageLimit)
	offset = positiveInt(q.Get("offset"), 0)
	return min(limit, maxPageLimit), offset
}

func positiveInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// paginate returns the page of items selected by r's query. An offset past
// the end yields an empty page.
func paginate[T any](r *http.Request, items []T) ([]T, PaginationMeta) {
	limit, offset := pageParams(r.URL.Query())
	start := min(offset, len(items))
	end := min(start+limit, len(items))
	return items[start:end], PaginationMeta{
		TotalCount: len(items),
		Limit:      limit,
		Offset:     offset,
		HasMore:    end < len(items),
	}
}
