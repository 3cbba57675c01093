package domain

// Paging defaults for GET /users.
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// PaginationParams is one page request. Page is 1-indexed.
type PaginationParams struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// NewPaginationParams builds PaginationParams from optional query values.
// Missing or non-positive values take the defaults; Limit is capped at MaxLimit.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: DefaultPage, Limit: DefaultLimit}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = min(*limit, MaxLimit)
	}
	return p
}

// Offset returns the zero-based row offset for a SQL OFFSET clause.
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.Limit
}
