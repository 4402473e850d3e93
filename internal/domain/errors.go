package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a broker operation is invoked
	// before a successful Connect. This is a programmer error and is
	// always surfaced.
	ErrNotConnected = errors.New("not connected to broker")

	// ErrNoQuote marks a symbol for which no quote arrived within the
	// market-data wait budget.
	ErrNoQuote = errors.New("no quote available")

	// ErrMissingAccountField is returned when a decision needs an
	// account balance the backend did not report.
	ErrMissingAccountField = errors.New("account field not reported by broker")
)

// SubmissionError reports that the backend rejected an order, carrying
// the backend's own rejection reason.
type SubmissionError struct {
	Broker string
	Reason string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s rejected order: %s", e.Broker, e.Reason)
}

// UnsupportedBrokerError reports a configured broker name outside the
// supported set.
type UnsupportedBrokerError struct {
	Name string
}

func (e *UnsupportedBrokerError) Error() string {
	return fmt.Sprintf("unsupported broker %q", e.Name)
}
