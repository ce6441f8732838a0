package shipping

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPostalCode indicates the CEP does not normalise to exactly 8 digits.
	ErrInvalidPostalCode = errors.New("shipping: invalid postal code")
	// ErrEmptyCart indicates a quote was requested without items.
	ErrEmptyCart = errors.New("shipping: cart is empty")
	// ErrFreightUnavailable indicates the carrier API failed or could not be reached.
	ErrFreightUnavailable = errors.New("shipping: freight quote unavailable")
	// ErrAddressNotFound indicates the CEP provider has no address for the postal code.
	ErrAddressNotFound = errors.New("shipping: address not found")
	// ErrAddressLookupUnavailable indicates the CEP provider failed or could not be reached.
	ErrAddressLookupUnavailable = errors.New("shipping: address lookup unavailable")
	// ErrStaleResponse indicates a newer lookup superseded this one.
	ErrStaleResponse = errors.New("shipping: stale response discarded")
)

// Messages shown to shoppers when a lookup fails.
const (
	MessageInvalidPostalCode = "CEP inválido. Informe os 8 dígitos do CEP."
	MessageEmptyCart         = "Adicione produtos ao carrinho para calcular o frete."
	MessageFreightFailed     = "Não foi possível calcular o frete. Tente novamente em instantes."
	MessageAddressNotFound   = "CEP não encontrado."
	MessageAddressFailed     = "Não foi possível consultar o CEP. Tente novamente."
)

// QuoteError pairs a lookup failure with the message to show the shopper.
type QuoteError struct {
	Message string
	Status  int
	Err     error
}

func (e *QuoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status > 0 {
		return fmt.Sprintf("%v (status %d)", e.Err, e.Status)
	}
	return e.Err.Error()
}

func (e *QuoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UserMessage extracts the shopper facing message from err, falling back to a generic one.
func UserMessage(err error) string {
	var qe *QuoteError
	if errors.As(err, &qe) && qe.Message != "" {
		return qe.Message
	}
	switch {
	case errors.Is(err, ErrInvalidPostalCode):
		return MessageInvalidPostalCode
	case errors.Is(err, ErrEmptyCart):
		return MessageEmptyCart
	case errors.Is(err, ErrAddressNotFound):
		return MessageAddressNotFound
	}
	return MessageFreightFailed
}
