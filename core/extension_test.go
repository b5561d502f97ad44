package core

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"pgregory.net/rapid"
)

func TestAutoExtension_FourSecondsRemaining(t *testing.T) {
	a := activeAuction()
	a.EndTime = testNow.Add(3 * time.Minute)
	now := a.EndTime.Add(-4 * time.Second)

	adm, err := AdmitBid(a, "bid-1", bidReq("alice", "1100"), now)
	assert.Nil(t, err)

	check.True(t, adm.Extended)
	check.Equal(t, StateExtended, a.State)
	check.Equal(t, now.Add(2*time.Minute), a.EndTime)
	check.Equal(t, 1, a.ExtensionCount)
}

func TestAutoExtension_OutsideWindow(t *testing.T) {
	a := activeAuction()
	originalEnd := a.EndTime

	adm, err := AdmitBid(a, "bid-1", bidReq("alice", "1100"), testNow)
	assert.Nil(t, err)

	check.True(t, !adm.Extended)
	check.Equal(t, StateActive, a.State)
	check.Equal(t, originalEnd, a.EndTime)
}

func TestAutoExtension_WindowBoundaryInclusive(t *testing.T) {
	a := activeAuction()
	now := a.EndTime.Add(-a.ExtensionWindow)

	check.True(t, ApplyAutoExtension(a, now))
	check.Equal(t, now.Add(a.ExtensionLength), a.EndTime)
}

func TestAutoExtension_Disabled(t *testing.T) {
	a := activeAuction()
	a.AutoExtendEnabled = false
	originalEnd := a.EndTime

	check.True(t, !ApplyAutoExtension(a, a.EndTime.Add(-time.Second)))
	check.Equal(t, originalEnd, a.EndTime)
	check.Equal(t, StateActive, a.State)
}

func TestAutoExtension_NeverMovesBackward(t *testing.T) {
	a := activeAuction()
	// Window larger than the extension length: a bid early in the window must not
	// pull the end time in.
	a.ExtensionWindow = 10 * time.Minute
	a.ExtensionLength = 30 * time.Second
	originalEnd := a.EndTime

	check.True(t, ApplyAutoExtension(a, testNow))
	check.Equal(t, originalEnd, a.EndTime)
	check.Equal(t, StateExtended, a.State)
}

func TestAutoExtension_Repeats(t *testing.T) {
	a := activeAuction()
	now := a.EndTime.Add(-time.Second)

	for i := 0; i < 5; i++ {
		amount := MinimumNextBid(a)
		_, err := AdmitBid(a, "bid", BidRequest{BidderID: "alice", Amount: amount}, now)
		assert.Nil(t, err)
		now = a.EndTime.Add(-time.Second)
	}

	check.Equal(t, 5, a.ExtensionCount)
	check.Equal(t, StateExtended, a.State)
}

func TestProperty_ExtensionGuaranteesLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		window := time.Duration(rapid.Int64Range(1, 600).Draw(t, "windowSec")) * time.Second
		length := time.Duration(rapid.Int64Range(1, 600).Draw(t, "lengthSec")) * time.Second
		remaining := time.Duration(rapid.Int64Range(1, 1200).Draw(t, "remainingSec")) * time.Second

		a := activeAuction()
		a.ExtensionWindow = window
		a.ExtensionLength = length
		now := a.EndTime.Add(-remaining)
		before := a.EndTime

		_, err := AdmitBid(a, "bid-1", bidReq("alice", "1100"), now)
		if err != nil {
			t.Fatalf("admission failed: %v", err)
		}

		if a.EndTime.Before(before) {
			t.Fatalf("end time moved backward: %v -> %v", before, a.EndTime)
		}
		if remaining <= window && a.EndTime.Sub(now) < length {
			t.Fatalf("extended end %v is less than %v after admission at %v", a.EndTime, length, now)
		}
		if remaining > window && !a.EndTime.Equal(before) {
			t.Fatalf("end time changed outside the window")
		}
	})
}
