package pagination

import "errors"

const (
	defaultMaxResults = 50
	maxAllowedResults = 500
)

// ErrInvalidPage page numbers start at 1
var ErrInvalidPage = errors.New("page must be greater than 0")

// Filter is a struct that contains the pagination filter
type Filter struct {
	MaxResults uint
	Page       *uint
}

// NewFilter creates a new filter. max_results is capped and page, when present, must be 1 or more.
func NewFilter(maxResults *uint, page *uint) (*Filter, error) {
	if page != nil && *page == 0 {
		return nil, ErrInvalidPage
	}
	f := &Filter{
		MaxResults: defaultMaxResults,
		Page:       page,
	}
	if maxResults != nil && *maxResults > 0 {
		f.MaxResults = min(*maxResults, maxAllowedResults)
	}
	return f, nil
}

// GetLimit returns the limit for the query
func (f *Filter) GetLimit() uint {
	if f.MaxResults == 0 {
		return defaultMaxResults
	}
	return f.MaxResults
}

// GetOffset returns the offset for the query
func (f *Filter) GetOffset() uint {
	return (f.GetPage() - 1) * f.GetLimit()
}

// GetPage returns the requested page, 1 when none was asked for
func (f *Filter) GetPage() uint {
	if f.Page == nil {
		return 1
	}
	return *f.Page
}
