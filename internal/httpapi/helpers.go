package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tally/internal/core"
)

const dateLayout = "2006-01-02"

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return core.Validationf("invalid request body: %v", err)
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, core.Validationf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// yearMonth reads year and month query parameters, defaulting to the
// current month when both are absent.
func yearMonth(r *http.Request) (int, int, error) {
	ys := r.URL.Query().Get("year")
	ms := r.URL.Query().Get("month")
	if ys == "" && ms == "" {
		now := time.Now()
		return now.Year(), int(now.Month()), nil
	}

	year, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, core.Validationf("invalid year %q", ys)
	}
	month, err := strconv.Atoi(ms)
	if err != nil {
		return 0, 0, core.Validationf("invalid month %q", ms)
	}
	if month < 1 || month > 12 {
		return 0, 0, core.Validationf("month %d out of range 1-12", month)
	}
	return year, month, nil
}

// transactionJSON is the wire shape of a ledger entry.
type transactionJSON struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	Category      string `json:"category"`
	Type          string `json:"type"`
	AccountID     string `json:"account_id"`
	Notes         string `json:"notes,omitempty"`
	IsSplitParent bool   `json:"is_split_parent,omitempty"`
	ParentID      string `json:"parent_id,omitempty"`
}

func toTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:            t.ID,
		Date:          t.Date.Format(dateLayout),
		Amount:        t.Amount.String(),
		Description:   t.Description,
		Category:      t.Category,
		Type:          string(t.Type),
		AccountID:     t.AccountID,
		Notes:         t.Notes,
		IsSplitParent: t.IsSplitParent,
		ParentID:      t.ParentID,
	}
}

func toTransactionListJSON(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionJSON(t))
	}
	return out
}
