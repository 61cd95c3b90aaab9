// Package mirror defines the outbound port for keeping an external copy of
// the ledger, plus the Google Sheets adapter that implements it.
package mirror

import (
	"context"

	"tally/internal/core"
)

// Row is one mirrored ledger entry. Account carries the resolved account
// name so the sheet is readable without id lookups.
type Row struct {
	Transaction core.Transaction
	Account     string
}

// RowAppender writes one ledger row to the external copy and returns a
// reference to where it landed.
type RowAppender interface {
	AppendRow(ctx context.Context, row Row) (ref string, err error)
}
