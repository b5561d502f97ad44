package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestBidMeetsReserve(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		reserve  decimal.NullDecimal
		expected bool
	}{
		{"no reserve - always passes", "1", decimal.NullDecimal{}, true},
		{"above reserve", "1600", nullDec("1500"), true},
		{"at reserve", "1500", nullDec("1500"), true},
		{"one below reserve", "1499", nullDec("1500"), false},
		{"sub-precision shortfall fails", "1499.99999", nullDec("1500"), false},
		{"last decimal short fails", "1499.9999", nullDec("1500"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check.Equal(t, tt.expected, BidMeetsReserve(dec(tt.amount), tt.reserve))
		})
	}
}

func TestBidMeetsIncrement(t *testing.T) {
	a := activeAuction()

	check.True(t, BidMeetsIncrement(a, dec("1100")))
	check.True(t, BidMeetsIncrement(a, dec("1100.00")))
	check.True(t, BidMeetsIncrement(a, dec("5000")))
	check.True(t, !BidMeetsIncrement(a, dec("1099.99")))
	check.True(t, !BidMeetsIncrement(a, dec("1000")))
	check.True(t, MinimumNextBid(a).Equal(dec("1100")))

	// no rounding toward the minimum
	check.True(t, !BidMeetsIncrement(a, dec("1099.99995")))

	a.MinBidIncrement = dec("0.25")
	check.True(t, BidMeetsIncrement(a, dec("1000.25")))
	check.True(t, !BidMeetsIncrement(a, dec("1000.24")))
}

func TestBuyNowOpen(t *testing.T) {
	a := activeAuction()
	check.True(t, !BuyNowOpen(a))

	a.BuyNowPrice = nullDec("5000")
	check.True(t, BuyNowOpen(a))

	a.CurrentPrice = dec("4999.99")
	check.True(t, BuyNowOpen(a))

	a.CurrentPrice = dec("5000")
	check.True(t, !BuyNowOpen(a))
}

func TestIsMoney(t *testing.T) {
	check.True(t, IsMoney(dec("1100")))
	check.True(t, IsMoney(dec("1100.0001")))
	check.True(t, IsMoney(dec("1100.00010")))
	check.True(t, !IsMoney(dec("1099.99995")))
	check.True(t, !IsMoney(dec("0.00001")))
}

func TestFormatMoney(t *testing.T) {
	check.Equal(t, "1100.0000", FormatMoney(dec("1100")))
	check.Equal(t, "1100.5000", FormatMoney(dec("1100.5")))
	check.Equal(t, "1099.99995", FormatMoney(dec("1099.99995")))
	check.True(t, FormatMoney(dec("1099.99995")) != FormatMoney(dec("1100")))
}
