package repository

import "errors"

var (
	// ErrRateLimited means the data provider refused the call; remaining instruments are not attempted.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoData means the provider had nothing for the instrument.
	ErrNoData = errors.New("no data")
	// ErrTransient covers network failures and other retryable provider errors.
	ErrTransient = errors.New("transient provider error")
	// ErrSizing means a position size could not be computed.
	ErrSizing = errors.New("cannot size position")
	// ErrExecution means the broker did not confirm an order.
	ErrExecution = errors.New("execution failed")
	// ErrPersistence means risk state could not be written.
	ErrPersistence = errors.New("persistence failed")
)

// IsDataUnavailable reports whether err means the instrument should be skipped this cycle.
func IsDataUnavailable(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrTransient)
}
