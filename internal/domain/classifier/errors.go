package classifier

import "errors"

// Sentinel kinds for sale history lookups.
var (
	ErrHistoryUnavailable = errors.New("transaction history unavailable")
)
