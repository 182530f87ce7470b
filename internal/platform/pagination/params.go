package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jara-commerce/api/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits page_size.
	DefaultPageSize = 20
	// MaxPageSize caps page_size to keep queries bounded.
	MaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid page_size")
	ErrInvalidPageToken = errors.New("pagination: invalid page_token")
)

// Cursor positions a newest-first listing after the last returned document.
type Cursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

// FromRequest reads page_size and page_token from the query string.
func FromRequest(r *http.Request) (domain.Pagination, error) {
	query := r.URL.Query()
	page := domain.Pagination{PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		page.PageSize = min(size, MaxPageSize)
	}

	page.PageToken = strings.TrimSpace(query.Get("page_token"))
	if _, err := DecodeToken(page.PageToken); err != nil {
		return domain.Pagination{}, err
	}
	return page, nil
}

// Normalize clamps a page size supplied by internal callers.
func Normalize(page domain.Pagination) domain.Pagination {
	switch {
	case page.PageSize <= 0:
		page.PageSize = DefaultPageSize
	case page.PageSize > MaxPageSize:
		page.PageSize = MaxPageSize
	}
	return page
}
