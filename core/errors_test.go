package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestError_MatchesByCode(t *testing.T) {
	err := Errorf(CodeBidTooLow, "bid must be at least %s", "1200.00")

	check.True(t, errors.Is(err, ErrBidTooLow))
	check.True(t, !errors.Is(err, ErrNotActive))
	check.Equal(t, CodeBidTooLow, CodeOf(err))
	check.Equal(t, "bid must be at least 1200.00", ReasonOf(err))

	wrapped := fmt.Errorf("place bid: %w", err)
	check.True(t, errors.Is(wrapped, ErrBidTooLow))
	check.Equal(t, CodeBidTooLow, CodeOf(wrapped))
}

func TestPersistenceError_HidesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := PersistenceError("save auction", cause)

	check.True(t, errors.Is(err, ErrPersistenceUnavailable))
	check.True(t, errors.Is(err, cause))
	check.Equal(t, "save auction failed", ReasonOf(err))
}

func TestCodeOf_Foreign(t *testing.T) {
	check.Equal(t, Code(""), CodeOf(nil))
	check.Equal(t, CodeUnavailable, CodeOf(errors.New("boom")))
	check.Equal(t, ErrUnavailable.Reason, ReasonOf(errors.New("boom")))
}
