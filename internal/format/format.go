package format

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDecimal is returned when a decimal amount cannot be converted to minor units.
var ErrInvalidDecimal = errors.New("format: invalid decimal amount")

// BRL formats amount in centavos the way prices are shown on the storefront.
// Example: BRL(19498) => "R$ 194,98"
func BRL(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	major := minor / 100
	cents := minor % 100
	out := fmt.Sprintf("R$ %s,%02d", thousandSep(major), cents)
	if neg {
		return "-" + out
	}
	return out
}

func thousandSep(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ParseDecimalCents converts a decimal string such as "25.40", "25,4" or "99" into
// hundredths without going through floating point. Digits beyond the second decimal
// place are rounded half-up.
func ParseDecimalCents(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidDecimal)
	}
	neg := false
	switch value[0] {
	case '-':
		neg = true
		value = value[1:]
	case '+':
		value = value[1:]
	}
	value = strings.ReplaceAll(value, ",", ".")
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" {
		whole = "0"
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDecimal, raw)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/100-1 {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidDecimal, raw)
	}

	roundUp := false
	if len(frac) > 2 {
		roundUp = frac[2] >= '5'
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, _ := strconv.ParseInt(frac, 10, 64)
	total := units*100 + cents
	if roundUp {
		total++
	}
	if neg {
		total = -total
	}
	return total, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decimal renders minor units as a plain decimal string ("25.40") for provider payloads.
func Decimal(minor int64) string {
	neg := minor < 0
	if neg {
		minor = -minor
	}
	out := fmt.Sprintf("%d.%02d", minor/100, minor%100)
	if neg {
		return "-" + out
	}
	return out
}

// Date formats time the way Brazilian customers read it.
func Date(t time.Time) string {
	return t.Format("02/01/2006")
}

// DecimalCents decodes a JSON price written either as a string ("23.45") or a
// number (23.45) into hundredths. Null and "" decode to zero.
type DecimalCents int64

func (d *DecimalCents) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*d = 0
		return nil
	}
	cents, err := ParseDecimalCents(strings.Trim(raw, `"`))
	if err != nil {
		return err
	}
	*d = DecimalCents(cents)
	return nil
}

// UnmarshalText accepts the same notations in text based formats such as YAML.
func (d *DecimalCents) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = 0
		return nil
	}
	cents, err := ParseDecimalCents(raw)
	if err != nil {
		return err
	}
	*d = DecimalCents(cents)
	return nil
}
