package httpapi

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tally/internal/ledger"
	"tally/internal/store"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TransactionFilter{
		AccountID:           q.Get("account_id"),
		DescriptionContains: q.Get("description"),
		CategoryContains:    q.Get("category"),
		AccountNameContains: q.Get("account"),
		ExcludeSplitParents: q.Get("include_split_parents") != "true",
		Ascending:           q.Get("order") == "asc",
	}
	if from := q.Get("from"); from != "" {
		t, err := parseDate(from)
		if err != nil {
			respondError(w, r, err)
			return
		}
		f.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := parseDate(to)
		if err != nil {
			respondError(w, r, err)
			return
		}
		f.To = t
	}

	txs, err := s.ledger.List(r.Context(), f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionListJSON(txs))
}

type createTransactionRequest struct {
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	AccountID   string          `json:"account_id"`
	Notes       string          `json:"notes"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := s.ledger.Insert(r.Context(), ledger.Draft{
		Date:        date,
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		AccountID:   req.AccountID,
		Notes:       req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

type updateTransactionRequest struct {
	Date        *string          `json:"date"`
	Amount      *decimal.Decimal `json:"amount"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	AccountID   *string          `json:"account_id"`
	Notes       *string          `json:"notes"`
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req updateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	p := ledger.Patch{
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
		AccountID:   req.AccountID,
		Notes:       req.Notes,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			respondError(w, r, err)
			return
		}
		p.Date = &date
	}

	tx, err := s.ledger.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.ledger.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := s.ledger.ListChildren(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionListJSON(children))
}

type splitRequest struct {
	Splits []struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
		Notes    string          `json:"notes"`
	} `json:"splits"`
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req splitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	lines := make([]ledger.SplitLine, 0, len(req.Splits))
	for _, sp := range req.Splits {
		lines = append(lines, ledger.SplitLine{Category: sp.Category, Amount: sp.Amount, Notes: sp.Notes})
	}

	parent, children, err := s.ledger.ConvertToSplit(r.Context(), r.PathValue("id"), lines)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"parent":   toTransactionJSON(parent),
		"children": toTransactionListJSON(children),
	})
}

type unsplitRequest struct {
	Category string `json:"category"`
}

func (s *Server) handleUnsplit(w http.ResponseWriter, r *http.Request) {
	var req unsplitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	tx, err := s.ledger.ConvertToSingle(r.Context(), r.PathValue("id"), req.Category)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleDeleteFamily(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.ledger.DeleteFamily(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (s *Server) handleListFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := s.ledger.ListFamilies(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	type familyJSON struct {
		Parent   transactionJSON   `json:"parent"`
		Children []transactionJSON `json:"children"`
	}
	out := make([]familyJSON, 0, len(families))
	for _, f := range families {
		out = append(out, familyJSON{
			Parent:   toTransactionJSON(f.Parent),
			Children: toTransactionListJSON(f.Children),
		})
	}
	respondJSON(w, http.StatusOK, out)
}
