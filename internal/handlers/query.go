package handlers

import (
	"net/http"
	"strings"

	"gorm.io/gorm"
)

// pageEnvelope is the pagination wrapper every list endpoint returns.
type pageEnvelope struct {
	Items   any   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

type pageParams struct {
	Page    int
	PerPage int
}

func pagination(r *http.Request) pageParams {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", 20)
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return pageParams{Page: page, PerPage: perPage}
}

func envelope(items any, total int64, p pageParams) pageEnvelope {
	pages := int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	return pageEnvelope{
		Items:   items,
		Total:   total,
		Page:    p.Page,
		PerPage: p.PerPage,
		Pages:   pages,
		HasNext: p.Page < pages,
		HasPrev: p.Page > 1 && total > 0,
	}
}

func paginate(q *gorm.DB, p pageParams) *gorm.DB {
	return q.Offset((p.Page - 1) * p.PerPage).Limit(p.PerPage)
}

// applySearch adds a case-insensitive LIKE across the given columns.
func applySearch(q *gorm.DB, term string, columns ...string) *gorm.DB {
	trimmed := strings.TrimSpace(term)
	if trimmed == "" || len(columns) == 0 {
		return q
	}
	pattern := "%" + strings.ToLower(trimmed) + "%"
	clause := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		clause = append(clause, "lower("+column+") LIKE ?")
		args = append(args, pattern)
	}
	return q.Where(strings.Join(clause, " OR "), args...)
}

// applySort whitelists the sortable columns; anything else falls back to the
// default ordering.
func applySort(q *gorm.DB, sortBy, sortOrder, defaultOrder string, allowed map[string]string) *gorm.DB {
	column, ok := allowed[strings.TrimSpace(sortBy)]
	if !ok {
		return q.Order(defaultOrder)
	}
	direction := "asc"
	if strings.EqualFold(strings.TrimSpace(sortOrder), "desc") {
		direction = "desc"
	}
	return q.Order(column + " " + direction)
}
