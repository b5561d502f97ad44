package core

import (
	"github.com/shopspring/decimal"
)

const monetaryPrecision int32 = 4 // 4 decimal places (0.0001 precision)

// IsMoney reports whether d fits the monetary precision. Amounts with more
// decimal places are rejected at admission, so every comparison below is exact.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(monetaryPrecision))
}

func checkMoney(field string, d decimal.Decimal) error {
	if !IsMoney(d) {
		return Errorf(CodeInvalidRequest, "%s %s has more than %d decimal places", field, d, monetaryPrecision)
	}
	return nil
}

// MinimumNextBid returns the lowest amount the next bid must reach.
func MinimumNextBid(a *Auction) decimal.Decimal {
	return a.CurrentPrice.Add(a.MinBidIncrement)
}

// BidMeetsIncrement returns true if amount clears the current price by at least the increment.
func BidMeetsIncrement(a *Auction, amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(MinimumNextBid(a))
}

// BidMeetsReserve returns true if amount satisfies the reserve.
// An auction without a reserve accepts any winning amount.
func BidMeetsReserve(amount decimal.Decimal, reserve decimal.NullDecimal) bool {
	if !reserve.Valid {
		return true
	}
	return amount.GreaterThanOrEqual(reserve.Decimal)
}

// BuyNowOpen reports whether the fixed price is still above what bidding has reached.
func BuyNowOpen(a *Auction) bool {
	if !a.BuyNowPrice.Valid {
		return false
	}
	return a.CurrentPrice.LessThan(a.BuyNowPrice.Decimal)
}

// displayMoney shows cents, plus any sub-cent digits the amount carries.
func displayMoney(d decimal.Decimal) string {
	places := min(max(-d.Exponent(), 2), monetaryPrecision)
	return d.StringFixed(places)
}

// FormatMoney renders an amount with the fixed precision used in hashes and
// receipts. Extra digits are kept rather than rounded away, so two different
// amounts never render the same.
func FormatMoney(d decimal.Decimal) string {
	if !IsMoney(d) {
		return d.String()
	}
	return d.StringFixed(monetaryPrecision)
}
