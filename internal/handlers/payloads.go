package handlers

import (
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
	"github.com/spikeboom/love-cosmetics-website-sub000/internal/format"
)

type moneyPayload struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func money(cents int64) moneyPayload {
	return moneyPayload{Cents: cents, Display: format.BRL(cents)}
}

func optionalMoney(cents *int64) *moneyPayload {
	if cents == nil {
		return nil
	}
	m := money(*cents)
	return &m
}

type productPayload struct {
	ID              string         `json:"id"`
	Slug            string         `json:"slug"`
	Name            string         `json:"name"`
	SKU             string         `json:"sku,omitempty"`
	Price           moneyPayload   `json:"price"`
	OriginalPrice   *moneyPayload  `json:"originalPrice,omitempty"`
	DescriptionHTML string         `json:"descriptionHtml,omitempty"`
	ImageURL        string         `json:"imageUrl,omitempty"`
	Stock           *int           `json:"stock,omitempty"`
	Package         packagePayload `json:"package"`
	UpdatedAt       string         `json:"updatedAt,omitempty"`
}

type packagePayload struct {
	WeightGrams int     `json:"weightGrams"`
	WidthCM     float64 `json:"widthCm"`
	HeightCM    float64 `json:"heightCm"`
	LengthCM    float64 `json:"lengthCm"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Slug:            product.Slug,
		Name:            product.Name,
		SKU:             product.SKU,
		Price:           money(product.Price),
		OriginalPrice:   optionalMoney(product.OriginalPrice),
		DescriptionHTML: product.DescriptionHTML,
		ImageURL:        product.ImageURL,
		Stock:           product.Stock,
		Package: packagePayload{
			WeightGrams: product.Package.WeightGrams,
			WidthCM:     product.Package.WidthCM,
			HeightCM:    product.Package.HeightCM,
			LengthCM:    product.Package.LengthCM,
		},
		UpdatedAt: formatTime(product.UpdatedAt),
	}
}

type totalsPayload struct {
	Subtotal moneyPayload `json:"subtotal"`
	Discount moneyPayload `json:"discount"`
	Freight  moneyPayload `json:"freight"`
	Total    moneyPayload `json:"total"`
	Courtesy bool         `json:"courtesy,omitempty"`
}

func buildTotalsPayload(totals domain.OrderTotals) totalsPayload {
	return totalsPayload{
		Subtotal: money(totals.Subtotal),
		Discount: money(totals.Discount),
		Freight:  money(totals.Freight),
		Total:    money(totals.Total),
		Courtesy: totals.Courtesy,
	}
}

type freightPayload struct {
	Carrier      string       `json:"carrier"`
	ServiceName  string       `json:"serviceName"`
	ServiceCode  string       `json:"serviceCode"`
	Price        moneyPayload `json:"price"`
	DeliveryDays int          `json:"deliveryDays"`
}

func buildFreightPayload(option domain.FreightOption) freightPayload {
	return freightPayload{
		Carrier:      option.Carrier,
		ServiceName:  option.ServiceName,
		ServiceCode:  option.ServiceCode,
		Price:        money(option.Price),
		DeliveryDays: option.DeliveryDays,
	}
}

func buildFreightPayloads(options []domain.FreightOption) []freightPayload {
	out := make([]freightPayload, 0, len(options))
	for _, option := range options {
		out = append(out, buildFreightPayload(option))
	}
	return out
}

type cartItemPayload struct {
	ProductID     string        `json:"productId"`
	SKU           string        `json:"sku,omitempty"`
	Name          string        `json:"name"`
	UnitPrice     moneyPayload  `json:"unitPrice"`
	OriginalPrice *moneyPayload `json:"originalPrice,omitempty"`
	Quantity      int           `json:"quantity"`
	LineTotal     moneyPayload  `json:"lineTotal"`
	ImageURL      string        `json:"imageUrl,omitempty"`
	Stale         bool          `json:"stale,omitempty"`
	StaleReason   string        `json:"staleReason,omitempty"`
}

type couponPayload struct {
	Code   string       `json:"code"`
	Kind   string       `json:"kind"`
	Amount moneyPayload `json:"amount"`
}

type cartPayload struct {
	ID             string                       `json:"id"`
	Currency       string                       `json:"currency"`
	Items          []cartItemPayload            `json:"items"`
	Coupons        []couponPayload              `json:"coupons"`
	PostalCode     string                       `json:"postalCode,omitempty"`
	FreightOptions []freightPayload             `json:"freightOptions"`
	Freight        *freightPayload              `json:"freight,omitempty"`
	Steps          map[string]map[string]string `json:"steps,omitempty"`
	Totals         totalsPayload                `json:"totals"`
	ItemCount      int                          `json:"itemCount"`
	CreatedAt      string                       `json:"createdAt,omitempty"`
	UpdatedAt      string                       `json:"updatedAt,omitempty"`
}

func buildCartPayload(cart domain.Cart) cartPayload {
	payload := cartPayload{
		ID:             cart.ID,
		Currency:       cart.Currency,
		Items:          make([]cartItemPayload, 0, len(cart.Items)),
		Coupons:        make([]couponPayload, 0, len(cart.Coupons)),
		PostalCode:     cart.PostalCode,
		FreightOptions: buildFreightPayloads(cart.FreightOptions),
		Totals:         buildTotalsPayload(cart.Totals),
		CreatedAt:      formatTime(cart.CreatedAt),
		UpdatedAt:      formatTime(cart.UpdatedAt),
	}
	if payload.Currency == "" {
		payload.Currency = domain.DefaultCurrency
	}
	for _, item := range cart.Items {
		payload.ItemCount += item.Quantity
		payload.Items = append(payload.Items, cartItemPayload{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Name:          item.Name,
			UnitPrice:     money(item.UnitPrice),
			OriginalPrice: optionalMoney(item.OriginalPrice),
			Quantity:      item.Quantity,
			LineTotal:     money(item.LineTotal()),
			ImageURL:      item.ImageURL,
			Stale:         item.Stale,
			StaleReason:   item.StaleReason,
		})
	}
	for _, coupon := range cart.Coupons {
		payload.Coupons = append(payload.Coupons, couponPayload{
			Code:   coupon.Code,
			Kind:   string(coupon.Kind),
			Amount: money(coupon.Amount),
		})
	}
	if cart.Freight != nil {
		selected := buildFreightPayload(*cart.Freight)
		payload.Freight = &selected
	}
	if len(cart.Steps) > 0 {
		payload.Steps = make(map[string]map[string]string, len(cart.Steps))
		for step, values := range cart.Steps {
			copied := make(map[string]string, len(values))
			for k, v := range values {
				copied[k] = v
			}
			payload.Steps[string(step)] = copied
		}
	}
	return payload
}

type addressPayload struct {
	PostalCode   string `json:"postalCode"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	IBGECode     string `json:"ibgeCode,omitempty"`
}

func buildAddressPayload(lookup domain.AddressLookup) addressPayload {
	return addressPayload{
		PostalCode:   lookup.PostalCode,
		Street:       lookup.Street,
		Neighborhood: lookup.Neighborhood,
		City:         lookup.City,
		State:        lookup.State,
		IBGECode:     lookup.IBGECode,
	}
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
