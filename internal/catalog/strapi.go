package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/format"
)

type strapiList struct {
	Data []strapiEntry `json:"data"`
	Meta struct {
		Pagination struct {
			Page      int `json:"page"`
			PageCount int `json:"pageCount"`
			Total     int `json:"total"`
		} `json:"pagination"`
	} `json:"meta"`
}

type strapiSingle struct {
	Data *strapiEntry `json:"data"`
}

// strapiEntry accepts both the v4 shape ({id, attributes:{...}}) and the flat v5 shape.
type strapiEntry struct {
	ID         string
	DocumentID string
	Attributes json.RawMessage
}

func (e *strapiEntry) UnmarshalJSON(data []byte) error {
	var head struct {
		ID         json.Number     `json:"id"`
		DocumentID string          `json:"documentId"`
		Attributes json.RawMessage `json:"attributes"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	e.ID = head.ID.String()
	e.DocumentID = head.DocumentID
	e.Attributes = head.Attributes
	if len(bytes.TrimSpace(head.Attributes)) == 0 || string(bytes.TrimSpace(head.Attributes)) == "null" {
		e.Attributes = append(json.RawMessage(nil), data...)
	}
	return nil
}

type productAttributes struct {
	Name          string               `json:"name"`
	Slug          string               `json:"slug"`
	SKU           string               `json:"sku"`
	Price         format.DecimalCents  `json:"price"`
	OriginalPrice *format.DecimalCents `json:"original_price"`
	Description   string               `json:"description"`
	Stock         *int                 `json:"stock"`
	Image         mediaRef             `json:"image"`
	WeightGrams   int                  `json:"weight_grams"`
	WidthCM       float64              `json:"width_cm"`
	HeightCM      float64              `json:"height_cm"`
	LengthCM      float64              `json:"length_cm"`
	PublishedAt   *time.Time           `json:"publishedAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
}

type couponAttributes struct {
	Code        string              `json:"code"`
	Kind        string              `json:"kind"`
	Value       format.DecimalCents `json:"value"`
	Description string              `json:"description"`
	Active      *bool               `json:"active"`
	StartsAt    *time.Time          `json:"starts_at"`
	EndsAt      *time.Time          `json:"ends_at"`
	MinSubtotal format.DecimalCents `json:"min_subtotal"`
}

// mediaRef resolves the URL of a media field, populated or not.
type mediaRef string

func (m *mediaRef) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || string(raw) == "null" {
		*m = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*m = mediaRef(strings.TrimSpace(s))
		return nil
	}
	var shape struct {
		URL  string `json:"url"`
		Data *struct {
			URL        string `json:"url"`
			Attributes *struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		// Unknown media shapes are not worth failing a product over.
		*m = ""
		return nil
	}
	switch {
	case shape.URL != "":
		*m = mediaRef(shape.URL)
	case shape.Data != nil && shape.Data.Attributes != nil:
		*m = mediaRef(shape.Data.Attributes.URL)
	case shape.Data != nil:
		*m = mediaRef(shape.Data.URL)
	default:
		*m = ""
	}
	return nil
}

// key is the identifier the REST API accepts in /api/products/{id}: the
// documentId on Strapi 5, the numeric id before it.
func (e strapiEntry) key() string {
	if e.DocumentID != "" {
		return e.DocumentID
	}
	return e.ID
}

func (e strapiEntry) toProduct(mediaBase string, render func(string) string) (domain.Product, error) {
	var attrs productAttributes
	if err := json.Unmarshal(e.Attributes, &attrs); err != nil {
		return domain.Product{}, err
	}
	product := domain.Product{
		ID:              e.key(),
		Slug:            strings.TrimSpace(attrs.Slug),
		Name:            strings.TrimSpace(attrs.Name),
		SKU:             strings.TrimSpace(attrs.SKU),
		Price:           int64(attrs.Price),
		DescriptionHTML: render(attrs.Description),
		ImageURL:        absoluteMediaURL(mediaBase, string(attrs.Image)),
		Stock:           attrs.Stock,
		Package: domain.PackageDimensions{
			WeightGrams: attrs.WeightGrams,
			WidthCM:     attrs.WidthCM,
			HeightCM:    attrs.HeightCM,
			LengthCM:    attrs.LengthCM,
		},
		Published: attrs.PublishedAt != nil,
		UpdatedAt: attrs.UpdatedAt.UTC(),
	}
	if attrs.OriginalPrice != nil && int64(*attrs.OriginalPrice) > product.Price {
		original := int64(*attrs.OriginalPrice)
		product.OriginalPrice = &original
	}
	return product, nil
}

func (e strapiEntry) toCoupon() (domain.Coupon, error) {
	var attrs couponAttributes
	if err := json.Unmarshal(e.Attributes, &attrs); err != nil {
		return domain.Coupon{}, err
	}
	return couponFromFields(attrs.Code, attrs.Kind, int64(attrs.Value), attrs.Description, attrs.Active, attrs.StartsAt, attrs.EndsAt, int64(attrs.MinSubtotal)), nil
}

// couponFromFields maps CMS coupon fields. Percentages are written as "10" or "12.5"
// and parse to basis points (1000, 1250); fixed values parse to cents.
func couponFromFields(code, kind string, value int64, description string, active *bool, startsAt, endsAt *time.Time, minSubtotal int64) domain.Coupon {
	coupon := domain.Coupon{
		Code:        strings.TrimSpace(code),
		Value:       value,
		Description: strings.TrimSpace(description),
		Active:      active == nil || *active,
		MinSubtotal: minSubtotal,
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "percentage", "percent", "porcentagem":
		coupon.Kind = domain.CouponKindPercentage
	default:
		coupon.Kind = domain.CouponKindFixed
	}
	if startsAt != nil {
		ts := startsAt.UTC()
		coupon.StartsAt = &ts
	}
	if endsAt != nil {
		ts := endsAt.UTC()
		coupon.EndsAt = &ts
	}
	return coupon
}

func absoluteMediaURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || base == "" {
		return ref
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
}
