package pagination

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shade struct {
	name  string
	price int
}

var shadeOrder = map[string]Comparator[shade]{
	"name":  By(func(s shade) string { return s.name }),
	"price": By(func(s shade) int { return s.price }),
}

var shadeOptions = Options{DefaultPageSize: 10, MaxPageSize: 20, AllowedOrderFields: []string{"name", "price"}}

func TestParsePageSize(t *testing.T) {
	p, err := Parse(nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, Params{PageSize: DefaultPageSize}, p)

	p, err = Parse(url.Values{"pageSize": {"50"}}, shadeOptions)
	require.NoError(t, err)
	assert.Equal(t, 20, p.PageSize, "clamped to the maximum")

	p, err = Parse(nil, Options{DefaultPageSize: 40, MaxPageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, p.PageSize)

	for _, raw := range []string{"0", "-1", "abc"} {
		_, err := Parse(url.Values{"pageSize": {raw}}, shadeOptions)
		assert.ErrorIs(t, err, ErrInvalidPageSize, raw)
	}
}

func TestParseOrderBy(t *testing.T) {
	p, err := Parse(url.Values{"orderBy": {"-price, name:asc", "price"}}, shadeOptions)
	require.NoError(t, err)
	assert.Equal(t, []Order{{Field: "price", Desc: true}, {Field: "name"}}, p.Orders)

	p, err = Parse(url.Values{"orderBy": {"name DESC"}}, shadeOptions)
	require.NoError(t, err)
	assert.Equal(t, []Order{{Field: "name", Desc: true}}, p.Orders)

	for _, raw := range []string{"stock", "name sideways", "a b c"} {
		_, err := Parse(url.Values{"orderBy": {raw}}, shadeOptions)
		assert.ErrorIs(t, err, ErrInvalidOrderBy, raw)
	}
	_, err = Parse(url.Values{"orderBy": {"name"}}, Options{})
	assert.ErrorIs(t, err, ErrInvalidOrderBy)
}

func TestApplyWalksPages(t *testing.T) {
	shades := []shade{{"coral", 3}, {"amber", 1}, {"dune", 1}, {"blush", 2}}
	query := url.Values{"pageSize": {"3"}, "orderBy": {"price,name"}}

	p, err := Parse(query, shadeOptions)
	require.NoError(t, err)
	first := Apply(shades, p, shadeOrder)
	assert.Equal(t, 4, first.Total)
	assert.Equal(t, []shade{{"amber", 1}, {"dune", 1}, {"blush", 2}}, first.Items)
	require.NotEmpty(t, first.NextPageToken)

	query.Set("pageToken", first.NextPageToken)
	p, err = Parse(query, shadeOptions)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Offset)
	second := Apply(shades, p, shadeOrder)
	assert.Equal(t, []shade{{"coral", 3}}, second.Items)
	assert.Empty(t, second.NextPageToken)

	query.Set("orderBy", "name")
	_, err = Parse(query, shadeOptions)
	assert.ErrorIs(t, err, ErrInvalidPageToken, "token bound to the original ordering")
}

func TestApplyPastTheEnd(t *testing.T) {
	page := Apply([]shade{{"amber", 1}}, Params{PageSize: 5, Offset: 9}, shadeOrder)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)
	assert.Empty(t, page.NextPageToken)
}

func TestPageTokens(t *testing.T) {
	assert.Empty(t, issueToken(0, nil), "first page has no token")

	garbage := []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-dot")),
		base64.RawURLEncoding.EncodeToString([]byte("-4." + orderingHash(nil))),
	}
	for _, token := range garbage {
		_, err := Parse(url.Values{"pageToken": {token}}, shadeOptions)
		assert.ErrorIs(t, err, ErrInvalidPageToken, token)
	}

	offset, err := readToken(issueToken(48, nil), nil)
	require.NoError(t, err)
	assert.Equal(t, 48, offset)
}
