package pagination

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// A page token is "<offset>.<ordering hash>" in unpadded base64url. Binding the ordering means a
// token cannot be replayed after the client changes orderBy.

func issueToken(offset int, orders []Order) string {
	if offset <= 0 {
		return ""
	}
	raw := strconv.Itoa(offset) + "." + orderingHash(orders)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// readToken returns the offset carried by token once it matches orders.
func readToken(token string, orders []Order) (int, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: not base64url", ErrInvalidPageToken)
	}
	offsetPart, hash, ok := strings.Cut(string(decoded), ".")
	if !ok {
		return 0, fmt.Errorf("%w: malformed", ErrInvalidPageToken)
	}
	offset, err := strconv.Atoi(offsetPart)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("%w: bad offset", ErrInvalidPageToken)
	}
	if hash != orderingHash(orders) {
		return 0, fmt.Errorf("%w: issued for a different ordering", ErrInvalidPageToken)
	}
	return offset, nil
}

func orderingHash(orders []Order) string {
	h := fnv.New32a()
	for _, o := range orders {
		_, _ = h.Write([]byte(o.String() + ","))
	}
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
