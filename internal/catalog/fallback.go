package catalog

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/format"
)

// Fallback is a static catalog served when the CMS cannot be reached, or when no
// CMS is configured at all (local development).
type Fallback struct {
	Products []domain.Product
	Coupons  []domain.Coupon
}

type fallbackDocument struct {
	Products []fallbackProduct `yaml:"products"`
	Coupons  []fallbackCoupon  `yaml:"coupons"`
}

type fallbackProduct struct {
	ID            string               `yaml:"id"`
	Slug          string               `yaml:"slug"`
	Name          string               `yaml:"name"`
	SKU           string               `yaml:"sku"`
	Price         format.DecimalCents  `yaml:"price"`
	OriginalPrice *format.DecimalCents `yaml:"original_price"`
	Description   string               `yaml:"description"`
	ImageURL      string               `yaml:"image_url"`
	Stock         *int                 `yaml:"stock"`
	Package       struct {
		WeightGrams int     `yaml:"weight_grams"`
		WidthCM     float64 `yaml:"width_cm"`
		HeightCM    float64 `yaml:"height_cm"`
		LengthCM    float64 `yaml:"length_cm"`
	} `yaml:"package"`
	Hidden bool `yaml:"hidden"`
}

type fallbackCoupon struct {
	Code        string              `yaml:"code"`
	Kind        string              `yaml:"kind"`
	Value       format.DecimalCents `yaml:"value"`
	Description string              `yaml:"description"`
	Active      *bool               `yaml:"active"`
	StartsAt    *time.Time          `yaml:"starts_at"`
	EndsAt      *time.Time          `yaml:"ends_at"`
	MinSubtotal format.DecimalCents `yaml:"min_subtotal"`
}

// LoadFallback reads a YAML catalog file.
func LoadFallback(path string) (*Fallback, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read fallback %s: %w", path, err)
	}
	return ParseFallback(data)
}

// ParseFallback decodes a YAML catalog. Descriptions are markdown and rendered like CMS content.
func ParseFallback(data []byte) (*Fallback, error) {
	var doc fallbackDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse fallback: %w", err)
	}
	render := newDescriptionRenderer()
	out := &Fallback{
		Products: make([]domain.Product, 0, len(doc.Products)),
		Coupons:  make([]domain.Coupon, 0, len(doc.Coupons)),
	}
	seen := make(map[string]struct{}, len(doc.Products))
	for i, p := range doc.Products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("catalog: fallback product %d has no id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("catalog: fallback product %s is duplicated", id)
		}
		seen[id] = struct{}{}
		product := domain.Product{
			ID:              id,
			Slug:            strings.TrimSpace(p.Slug),
			Name:            strings.TrimSpace(p.Name),
			SKU:             strings.TrimSpace(p.SKU),
			Price:           int64(p.Price),
			DescriptionHTML: render.Render(p.Description),
			ImageURL:        strings.TrimSpace(p.ImageURL),
			Stock:           p.Stock,
			Package: domain.PackageDimensions{
				WeightGrams: p.Package.WeightGrams,
				WidthCM:     p.Package.WidthCM,
				HeightCM:    p.Package.HeightCM,
				LengthCM:    p.Package.LengthCM,
			},
			Published: !p.Hidden,
		}
		if p.OriginalPrice != nil && int64(*p.OriginalPrice) > product.Price {
			original := int64(*p.OriginalPrice)
			product.OriginalPrice = &original
		}
		out.Products = append(out.Products, product)
	}
	for _, c := range doc.Coupons {
		out.Coupons = append(out.Coupons, couponFromFields(c.Code, c.Kind, int64(c.Value), c.Description, c.Active, c.StartsAt, c.EndsAt, int64(c.MinSubtotal)))
	}
	return out, nil
}

func (f *Fallback) coupon(code string) (domain.Coupon, bool) {
	if f == nil {
		return domain.Coupon{}, false
	}
	for _, coupon := range f.Coupons {
		if strings.EqualFold(coupon.Code, code) {
			return coupon, true
		}
	}
	return domain.Coupon{}, false
}

func (f *Fallback) published() []domain.Product {
	if f == nil {
		return nil
	}
	out := make([]domain.Product, 0, len(f.Products))
	for _, p := range f.Products {
		if p.Published {
			out = append(out, p)
		}
	}
	return out
}
