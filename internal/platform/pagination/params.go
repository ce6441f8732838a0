// Package pagination reads pageSize, pageToken and orderBy from list requests and cuts sorted
// windows out of in-memory result sets.
package pagination

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const (
	DefaultPageSize    = 24
	DefaultMaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidOrderBy   = errors.New("pagination: invalid orderBy")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Order is one orderBy term.
type Order struct {
	Field string
	Desc  bool
}

func (o Order) String() string {
	if o.Desc {
		return o.Field + " desc"
	}
	return o.Field + " asc"
}

// Params is a parsed list query.
type Params struct {
	PageSize int
	Offset   int
	Orders   []Order
}

// Options are per-endpoint limits. Ordering is refused unless AllowedOrderFields is set.
type Options struct {
	DefaultPageSize    int
	MaxPageSize        int
	AllowedOrderFields []string
}

func (o Options) sizes() (def, limit int) {
	limit = DefaultMaxPageSize
	if o.MaxPageSize > 0 {
		limit = o.MaxPageSize
	}
	def = DefaultPageSize
	if o.DefaultPageSize > 0 {
		def = o.DefaultPageSize
	}
	return min(def, limit), limit
}

func FromRequest(r *http.Request, opts Options) (Params, error) {
	if r == nil {
		return Params{}, errors.New("pagination: nil request")
	}
	return Parse(r.URL.Query(), opts)
}

// Parse reads the list query. Oversized pages are clamped rather than rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	var (
		p   Params
		err error
	)
	def, limit := opts.sizes()
	p.PageSize = def
	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		n, convErr := strconv.Atoi(raw)
		switch {
		case convErr != nil:
			return Params{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPageSize, raw)
		case n < 1:
			return Params{}, fmt.Errorf("%w: must be at least 1", ErrInvalidPageSize)
		}
		p.PageSize = min(n, limit)
	}

	if p.Orders, err = parseOrders(values["orderBy"], opts.AllowedOrderFields); err != nil {
		return Params{}, err
	}

	if token := strings.TrimSpace(values.Get("pageToken")); token != "" {
		if p.Offset, err = readToken(token, p.Orders); err != nil {
			return Params{}, err
		}
	}
	return p, nil
}

// parseOrders accepts comma separated terms in the forms "price", "price desc", "price:desc"
// and "-price". A repeated field keeps its first direction.
func parseOrders(raw []string, allowed []string) ([]Order, error) {
	var orders []Order
	for _, value := range raw {
		for _, term := range strings.Split(value, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			if len(allowed) == 0 {
				return nil, fmt.Errorf("%w: ordering not supported", ErrInvalidOrderBy)
			}
			o, err := parseTerm(term)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(allowed, o.Field) {
				return nil, fmt.Errorf("%w: cannot order by %q", ErrInvalidOrderBy, o.Field)
			}
			if !slices.ContainsFunc(orders, func(prev Order) bool { return prev.Field == o.Field }) {
				orders = append(orders, o)
			}
		}
	}
	return orders, nil
}

func parseTerm(term string) (Order, error) {
	if field, ok := strings.CutPrefix(term, "-"); ok {
		return Order{Field: strings.TrimSpace(field), Desc: true}, nil
	}
	field, dir, _ := strings.Cut(strings.Replace(term, ":", " ", 1), " ")
	field, dir = strings.TrimSpace(field), strings.ToLower(strings.TrimSpace(dir))
	if field == "" || strings.ContainsAny(dir, " \t") {
		return Order{}, fmt.Errorf("%w: cannot parse %q", ErrInvalidOrderBy, term)
	}
	switch dir {
	case "", "asc":
		return Order{Field: field}, nil
	case "desc":
		return Order{Field: field, Desc: true}, nil
	}
	return Order{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidOrderBy, dir)
}
