// Package pricing computes line item and order amounts in whole currency units.
package pricing

import (
	"fmt"
	"math"

	"github.com/example/bookshop/pkg/apperr"
)

// EffectivePrice applies a discount percentage to a list price, rounding the
// discount down: price - floor(price*percent/100).
func EffectivePrice(listPrice int64, discountPercent int) (int64, error) {
	if listPrice < 0 {
		return 0, fmt.Errorf("%w: negative price %d", apperr.ErrInvalidPricingInput, listPrice)
	}
	if discountPercent < 0 || discountPercent > 100 {
		return 0, fmt.Errorf("%w: discount %d%% outside [0,100]", apperr.ErrInvalidPricingInput, discountPercent)
	}
	if discountPercent > 0 && listPrice > math.MaxInt64/int64(discountPercent) {
		return 0, fmt.Errorf("%w: price %d too large", apperr.ErrInvalidPricingInput, listPrice)
	}
	return listPrice - listPrice*int64(discountPercent)/100, nil
}

func LineTotal(listPrice int64, discountPercent, quantity int) (int64, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("%w: quantity %d must be positive", apperr.ErrInvalidPricingInput, quantity)
	}
	price, err := EffectivePrice(listPrice, discountPercent)
	if err != nil {
		return 0, err
	}
	if price > math.MaxInt64/int64(quantity) {
		return 0, fmt.Errorf("%w: %d x %d overflows", apperr.ErrInvalidPricingInput, price, quantity)
	}
	return price * int64(quantity), nil
}

// Line is a priced line item.
type Line struct {
	UnitPrice int64
	Quantity  int
	Total     int64
}

func NewLine(listPrice int64, discountPercent, quantity int) (Line, error) {
	total, err := LineTotal(listPrice, discountPercent, quantity)
	if err != nil {
		return Line{}, err
	}
	return Line{UnitPrice: total / int64(quantity), Quantity: quantity, Total: total}, nil
}

func Subtotal(lines []Line) (int64, error) {
	var sum int64
	for _, l := range lines {
		if l.Total < 0 || sum > math.MaxInt64-l.Total {
			return 0, fmt.Errorf("%w: subtotal overflows", apperr.ErrInvalidPricingInput)
		}
		sum += l.Total
	}
	return sum, nil
}
