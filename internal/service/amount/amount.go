package amount

import (
	"errors"
	"math"

	"github.com/shopstack/checkout/internal/service/models/lineitem"
)

// ErrInvalidInput is returned for an empty cart, a non-positive quantity, a
// negative price, or a total that does not fit in int64.
var ErrInvalidInput = errors.New("invalid cart input")

// Total computes the exact charge amount in minor currency units for the given
// cart lines. It has no side effects and rejects on overflow rather than wrap.
func Total(lines []lineitem.LineItem) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrInvalidInput
	}

	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPriceCents < 0 {
			return 0, ErrInvalidInput
		}

		if line.UnitPriceCents != 0 && line.Quantity > math.MaxInt64/line.UnitPriceCents {
			return 0, ErrInvalidInput
		}
		subtotal := line.UnitPriceCents * line.Quantity

		if total > math.MaxInt64-subtotal {
			return 0, ErrInvalidInput
		}
		total += subtotal
	}

	return total, nil
}
