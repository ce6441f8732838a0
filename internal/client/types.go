package client

// Money is an amount in centavos with its R$ rendering.
type Money struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

// Address is the result of a CEP lookup.
type Address struct {
	PostalCode   string `json:"postalCode"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	IBGECode     string `json:"ibgeCode,omitempty"`
}

// Item is a product and quantity pair.
type Item struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type quoteRequest struct {
	PostalCode string `json:"postalCode"`
	Items      []Item `json:"items"`
}

// FreightOption is one carrier service offered for a destination.
type FreightOption struct {
	Carrier      string `json:"carrier"`
	ServiceName  string `json:"serviceName"`
	ServiceCode  string `json:"serviceCode"`
	Price        Money  `json:"price"`
	DeliveryDays int    `json:"deliveryDays"`
}

// Quote lists the freight options for a postal code.
type Quote struct {
	PostalCode string          `json:"postalCode"`
	Options    []FreightOption `json:"options"`
	Cheapest   *FreightOption  `json:"cheapest,omitempty"`
}

// Product is a catalog entry.
type Product struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	Name          string `json:"name"`
	Price         Money  `json:"price"`
	OriginalPrice *Money `json:"originalPrice,omitempty"`
}

type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

type ShippingAddress struct {
	PostalCode   string `json:"postalCode"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// FreightSelection echoes the option the customer picked; the server re-quotes it.
type FreightSelection struct {
	Carrier     string `json:"carrier"`
	ServiceName string `json:"serviceName,omitempty"`
	ServiceCode string `json:"serviceCode"`
	Price       int64  `json:"price"`
}

// Discount requests a manual discount. Percentage and fixed modes need the courtesy token.
type Discount struct {
	Mode    string `json:"mode"`
	Percent string `json:"percent,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type Payment struct {
	Method       string `json:"method"`
	CardToken    string `json:"cardToken,omitempty"`
	Installments int    `json:"installments,omitempty"`
}

// CheckoutRequest is the body of POST /checkout.
type CheckoutRequest struct {
	CartID          string            `json:"cartId,omitempty"`
	Customer        Customer          `json:"customer"`
	ShippingAddress ShippingAddress   `json:"shippingAddress"`
	Items           []Item            `json:"items,omitempty"`
	CouponCodes     []string          `json:"couponCodes,omitempty"`
	Discount        *Discount         `json:"discount,omitempty"`
	Freight         *FreightSelection `json:"freight,omitempty"`
	Payment         Payment           `json:"payment"`
	Courtesy        bool              `json:"courtesy,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	IdempotencyKey string `json:"-"`
}

type Totals struct {
	Subtotal Money `json:"subtotal"`
	Discount Money `json:"discount"`
	Freight  Money `json:"freight"`
	Total    Money `json:"total"`
	Courtesy bool  `json:"courtesy,omitempty"`
}

// PIX carries the QR payload for a pending PIX payment.
type PIX struct {
	QRCode    string `json:"qrCode,omitempty"`
	CopyCode  string `json:"copyCode"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// CheckoutResponse is the 201 body of POST /checkout.
type CheckoutResponse struct {
	Message       string   `json:"message"`
	OrderID       string   `json:"orderId"`
	OrderNumber   string   `json:"orderNumber"`
	Status        string   `json:"status"`
	PaymentStatus string   `json:"paymentStatus"`
	Totals        Totals   `json:"totals"`
	PaymentLink   string   `json:"paymentLink,omitempty"`
	PIX           *PIX     `json:"pix,omitempty"`
	AccessToken   string   `json:"accessToken,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// OrderStatus is the body of GET /orders/{id}/status.
type OrderStatus struct {
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber,omitempty"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Total         Money  `json:"total"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}
