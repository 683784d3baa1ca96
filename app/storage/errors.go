package storage

import "errors"

// ErrNotFound is returned when a requested chat or message is absent.
// Absence is caller-visible (it changes outcomes like context lookups), so it
// is never silently defaulted.
var ErrNotFound = errors.New("not found")
