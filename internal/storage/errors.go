package storage

import "errors"

// ErrNoPriceRecord is returned when no price has been recorded for a ticker
var ErrNoPriceRecord = errors.New("no price recorded")
