package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize defines the fallback number of items returned when the client omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize caps the supported pageSize to prevent unbounded queries.
	DefaultMaxPageSize = 100
)

var (
	// ErrInvalidPageSize is returned when pageSize is not a positive integer.
	ErrInvalidPageSize = errors.New("pagination: invalid page size")
	// ErrInvalidPageToken is returned when pageToken cannot be decoded.
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
)

// Cursor represents the keyset position encoded in a page token.
type Cursor struct {
	StartAfter []any `json:"startAfter,omitempty"`
	StartAt    []any `json:"startAt,omitempty"`
}

// Params bundles pagination values extracted from a request.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Option customises Parse behaviour.
type Option func(*options)

type options struct {
	defaultSize int
	maxSize     int
}

// WithDefaultPageSize overrides DefaultPageSize.
func WithDefaultPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.defaultSize = size
		}
	}
}

// WithMaxPageSize overrides DefaultMaxPageSize.
func WithMaxPageSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.maxSize = size
		}
	}
}

// Parse reads pageSize and pageToken from the query string. Oversized pages are clamped.
func Parse(r *http.Request, opts ...Option) (Params, error) {
	cfg := options{defaultSize: DefaultPageSize, maxSize: DefaultMaxPageSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	query := r.URL.Query()
	params := Params{PageSize: cfg.defaultSize}

	if raw := strings.TrimSpace(query.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return Params{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		params.PageSize = size
	}
	if params.PageSize > cfg.maxSize {
		params.PageSize = cfg.maxSize
	}

	params.PageToken = strings.TrimSpace(query.Get("pageToken"))
	cursor, err := DecodeToken(params.PageToken)
	if err != nil {
		return Params{}, err
	}
	params.Cursor = cursor
	return params, nil
}
