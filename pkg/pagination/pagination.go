package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds keyset pagination parameters extracted from a request.
// LastDoc is the id of the last item of the previous page; empty means the
// first page.
type Params struct {
	Limit   int
	LastDoc string
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("limit"), c.QueryParam("lastDoc"))
}

// Parse normalises raw limit and cursor values.
func Parse(rawLimit, lastDoc string) Params {
	limit, _ := strconv.Atoi(rawLimit)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Limit: limit, LastDoc: strings.TrimSpace(lastDoc)}
}

// Fetch is the number of rows to request from storage: one extra row tells
// whether another page exists.
func (p Params) Fetch() int {
	return p.Limit + 1
}

// Page is a single page of items plus the cursor of the next one.
type Page[T any] struct {
	Items   []T
	LastDoc string
	HasMore bool
}

// Trim cuts a result fetched with Fetch() down to Limit and derives the next
// cursor with idOf.
func Trim[T any](p Params, items []T, idOf func(T) string) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > p.Limit {
		page.Items = items[:p.Limit]
		page.HasMore = true
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if n := len(page.Items); n > 0 && page.HasMore {
		page.LastDoc = idOf(page.Items[n-1])
	}
	return page
}
