package core

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"pgregory.net/rapid"
)

func TestResolve_DecisionTable(t *testing.T) {
	leader := &Bid{ID: "bid-1", Amount: dec("1500")}

	tests := []struct {
		name        string
		leading     *Bid
		reserve     string
		wantState   State
		wantOutcome Outcome
		wantWinner  bool
	}{
		{"no bids", nil, "", StateNoBids, OutcomeNoBids, false},
		{"no reserve", leader, "", StateSold, OutcomeSold, true},
		{"reserve met exactly", leader, "1500", StateSold, OutcomeSold, true},
		{"reserve exceeded", leader, "1200", StateSold, OutcomeSold, true},
		{"reserve not met", leader, "1500.01", StateEnded, OutcomeReserveNotMet, false},
		{"reserve set, no bids", nil, "1200", StateNoBids, OutcomeNoBids, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := activeAuction()
			if tt.reserve != "" {
				a.ReservePrice = nullDec(tt.reserve)
			}

			s := Resolve(tt.leading, a.ReservePrice)

			check.Equal(t, tt.wantState, s.State)
			check.Equal(t, tt.wantOutcome, s.Outcome)
			check.Equal(t, tt.wantWinner, s.WinningBid != nil)
		})
	}
}

func TestRunSettlement_NoBids(t *testing.T) {
	a := activeAuction()
	closeAt := a.EndTime

	s, err := RunSettlement(a, nil, closeAt)
	assert.Nil(t, err)
	assert.NotNil(t, s)

	check.Equal(t, StateNoBids, a.State)
	check.Equal(t, OutcomeNoBids, s.Outcome)
	check.Equal(t, "", a.WinningBidID)
	check.NotNil(t, a.SettledAt)
}

func TestRunSettlement_SoldSetsWinner(t *testing.T) {
	a := activeAuction()
	a.ReservePrice = nullDec("1200")
	adm, err := AdmitBid(a, "bid-1", bidReq("alice", "1200"), testNow)
	assert.Nil(t, err)

	s, err := RunSettlement(a, adm.Bid, a.EndTime.Add(time.Second))
	assert.Nil(t, err)

	check.Equal(t, StateSold, a.State)
	check.Equal(t, "bid-1", a.WinningBidID)
	check.True(t, s.FinalPrice.Equal(dec("1200")))
	check.True(t, s.ReserveMet)
}

func TestRunSettlement_ReserveOneBelow(t *testing.T) {
	a := activeAuction()
	a.ReservePrice = nullDec("1500")
	adm, err := AdmitBid(a, "bid-1", bidReq("alice", "1499"), testNow)
	assert.Nil(t, err)

	s, err := RunSettlement(a, adm.Bid, a.EndTime)
	assert.Nil(t, err)

	check.Equal(t, StateEnded, a.State)
	check.Equal(t, OutcomeReserveNotMet, s.Outcome)
	check.Equal(t, "", a.WinningBidID)
}

func TestResolve_ReserveNotRoundedUp(t *testing.T) {
	bid := &Bid{ID: "bid-1", Amount: dec("1499.99995")}
	s := Resolve(bid, nullDec("1500"))
	check.Equal(t, OutcomeReserveNotMet, s.Outcome)
	check.Equal(t, StateEnded, s.State)
}

func TestRunSettlement_Idempotent(t *testing.T) {
	a := activeAuction()
	adm, err := AdmitBid(a, "bid-1", bidReq("alice", "1100"), testNow)
	assert.Nil(t, err)

	first, err := RunSettlement(a, adm.Bid, a.EndTime)
	assert.Nil(t, err)
	assert.NotNil(t, first)
	settled := a.Clone()

	second, err := RunSettlement(a, adm.Bid, a.EndTime.Add(time.Hour))
	check.Nil(t, err)
	check.Nil(t, second)
	check.Equal(t, settled, a)
	check.Equal(t, "bid-1", a.WinningBidID)
}

func TestRunSettlement_NotYetExpired(t *testing.T) {
	a := activeAuction()

	s, err := RunSettlement(a, nil, a.EndTime.Add(-time.Nanosecond))
	check.Nil(t, err)
	check.Nil(t, s)
	check.Equal(t, StateActive, a.State)
}

func TestRunSettlement_ScheduledWindowPassed(t *testing.T) {
	a := activeAuction()
	a.State = StateScheduled

	s, err := RunSettlement(a, nil, a.EndTime.Add(time.Minute))
	assert.Nil(t, err)
	assert.NotNil(t, s)
	check.Equal(t, StateNoBids, a.State)
}

func TestRunSettlement_MissingLeader(t *testing.T) {
	a := activeAuction()
	a.LeadingBidID = "bid-gone"

	_, err := RunSettlement(a, nil, a.EndTime)
	check.True(t, errors.Is(err, ErrPersistenceUnavailable))
	check.Equal(t, StateActive, a.State)
}

func TestRunSettlement_CancelledIsNoOp(t *testing.T) {
	a := activeAuction()
	a.State = StateCancelled

	s, err := RunSettlement(a, nil, a.EndTime.Add(time.Hour))
	check.Nil(t, err)
	check.Nil(t, s)
	check.Equal(t, StateCancelled, a.State)
}

func TestProperty_ReserveEnforcement(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reserve := rapid.Int64Range(1100, 100000).Draw(t, "reserve")
		amount := rapid.Int64Range(1100, 100000).Draw(t, "amount")

		a := activeAuction()
		a.ReservePrice = nullDec(itoa(reserve))
		adm, err := AdmitBid(a, "bid-1", bidReq("alice", itoa(amount)), testNow)
		if err != nil {
			t.Fatalf("admission failed: %v", err)
		}
		s, err := RunSettlement(a, adm.Bid, a.EndTime)
		if err != nil {
			t.Fatalf("settlement failed: %v", err)
		}

		if amount < reserve && a.State != StateEnded {
			t.Fatalf("amount %d below reserve %d settled %s", amount, reserve, a.State)
		}
		if amount >= reserve && (a.State != StateSold || a.WinningBidID != "bid-1") {
			t.Fatalf("amount %d meeting reserve %d settled %s", amount, reserve, a.State)
		}
		if s.ReserveMet != (amount >= reserve) {
			t.Fatalf("reserve_met=%v for amount %d reserve %d", s.ReserveMet, amount, reserve)
		}
	})
}
