package httpapi

import (
	"net/http"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.ListAccounts(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	type accountJSON struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountJSON{ID: a.ID, Name: a.Name})
	}
	respondJSON(w, http.StatusOK, out)
}

type createAccountRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	account, err := s.accounts.CreateAccount(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": account.ID, "name": account.Name})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	balances, total, err := s.reports.Overview(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	type balanceJSON struct {
		AccountID string `json:"account_id"`
		Account   string `json:"account"`
		Balance   string `json:"balance"`
	}
	out := make([]balanceJSON, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceJSON{AccountID: b.Account.ID, Account: b.Account.Name, Balance: b.Balance.String()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts": out,
		"total":    total.String(),
	})
}
