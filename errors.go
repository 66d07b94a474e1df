package djvukeeper

import "errors"

// ErrTooManyErrors is returned when a catalog scan exceeds the configured
// error percentage, so its results were not committed to the database.
var ErrTooManyErrors = errors.New("djvukeeper: scan error threshold exceeded")

// ErrBundlingFailed is returned when a bundling attempt halted with
// recorded problems; the result carries the full list.
var ErrBundlingFailed = errors.New("djvukeeper: bundling failed")
