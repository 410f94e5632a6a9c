package pagination

import (
	"math"
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100

	// MaxPage keeps the offset within a 32-bit integer for any page size.
	MaxPage = math.MaxInt32 / maxPageSize
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Offset   int `json:"-"`
}

// DefaultParams returns the first page with the default page size.
func DefaultParams() Params {
	return Params{Page: 1, PageSize: defaultPageSize}
}

// New builds Params from raw values, substituting defaults for anything out
// of range. Pages beyond MaxPage are clamped to it.
func New(page, pageSize int) Params {
	p := DefaultParams()
	if page > 0 {
		p.Page = min(page, MaxPage)
	}
	if pageSize > 0 && pageSize <= maxPageSize {
		p.PageSize = pageSize
	}
	p.Offset = (p.Page - 1) * p.PageSize
	return p
}

// FromRequest reads ?page= and ?limit= (per_page is accepted as an alias).
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))

	size := q.Get("limit")
	if size == "" {
		size = q.Get("per_page")
	}
	pageSize, _ := strconv.Atoi(size)

	return New(page, pageSize)
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// Result wraps one page of items.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult creates a paginated result. A nil slice is rendered as [].
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := TotalPages(totalCount, params.PageSize)

	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
