// Package paginate implements the two paging strategies used by list
// procedures: keyset cursors over (created_at, id) and page/offset with an
// allow-listed sort.
package paginate

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var ErrInvalidSort = errors.New("invalid sort field")

// Cursor asks for the rows strictly after the row whose id is After, in
// (created_at DESC, id DESC) order.
type Cursor struct {
	After string
	Limit int
}

func NewCursor(after *string, limit int) Cursor {
	c := Cursor{Limit: ClampLimit(limit)}
	if after != nil {
		c.After = strings.TrimSpace(*after)
	}
	return c
}

// FetchSize is one more than the page so the caller can tell if there is a
// following page without a count query.
func (c Cursor) FetchSize() int { return c.Limit + 1 }

type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// Trim cuts a FetchSize result down to the page and derives the next cursor
// from the last kept row.
func Trim[T any](rows []T, limit int, id func(T) string) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	page := Page[T]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		page.HasMore = true
		next := id(page.Items[len(page.Items)-1])
		page.NextCursor = &next
	}
	return page
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Offset is a page/pageSize request with a sort chosen from an allow-list.
type Offset struct {
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

func (o Offset) normalized() Offset {
	if o.Page < 1 {
		o.Page = 1
	}
	o.PageSize = ClampLimit(o.PageSize)
	if !strings.EqualFold(o.SortOrder, "asc") {
		o.SortOrder = "desc"
	} else {
		o.SortOrder = "asc"
	}
	return o
}

func (o Offset) Limit() int { return o.normalized().PageSize }

func (o Offset) Skip() int {
	n := o.normalized()
	return (n.Page - 1) * n.PageSize
}

// SortColumns maps a public sort key to a SQL column.
type SortColumns map[string]string

// OrderBy renders the ORDER BY list for o. The empty sort key falls back to
// fallback. The id column is appended as a tie-break so pages never overlap.
func (o Offset) OrderBy(columns SortColumns, fallback, idColumn string) (string, error) {
	n := o.normalized()
	key := n.SortBy
	if key == "" {
		key = fallback
	}
	column, ok := columns[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, key)
	}
	dir := strings.ToUpper(n.SortOrder)
	return fmt.Sprintf("%s %s, %s %s", column, dir, idColumn, dir), nil
}

type OffsetPage[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

func NewOffsetPage[T any](items []T, total int, o Offset) OffsetPage[T] {
	n := o.normalized()
	if items == nil {
		items = []T{}
	}
	pages := 0
	if total > 0 {
		pages = (total + n.PageSize - 1) / n.PageSize
	}
	return OffsetPage[T]{Items: items, TotalCount: total, Page: n.Page, PageSize: n.PageSize, TotalPages: pages}
}
