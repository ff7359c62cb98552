package report

import (
	"context"
	"errors"
)

// ErrNotFound marks a report id the lookup collaborator could not resolve.
var ErrNotFound = errors.New("report not found")

// Report is an immutable metadata snapshot sourced from the report service.
type Report struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	CreditCost float64 `json:"credit_cost"`
}

// Lookup resolves report ids against the upstream report service. Ids that
// do not exist are simply absent from the returned map; an error means the
// whole batch could not be resolved.
type Lookup interface {
	FetchBatch(ctx context.Context, ids []int64) (map[int64]Report, error)
}
