package domain

import "errors"

// ErrEmptyBatch signals that a batch contained no analyzable transactions
// after row-level cleanup. Callers surface this to the submitter instead of
// returning a degenerate all-zero report.
var ErrEmptyBatch = errors.New("no valid transactions to analyze")
