package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexum/crypto"
	"nexum/native/lending"
)

func (s *Service) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "borrow", err)
		return
	}
	borrower, err := actor(r, req.Borrower)
	if err != nil {
		s.writeError(w, r, "borrow", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "borrow", err)
		return
	}
	loan, err := s.engine.Borrow(r.Context(), borrower, req.ReceivableIDs, amount, req.Duration)
	if err != nil {
		s.writeError(w, r, "borrow", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(loan))
}

func (s *Service) handleRepay(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "repay", err)
		return
	}
	var req repayRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "repay", err)
		return
	}
	borrower, err := actor(r, req.Borrower)
	if err != nil {
		s.writeError(w, r, "repay", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "repay", err)
		return
	}
	remaining, err := s.engine.Repay(r.Context(), borrower, id, amount)
	if err != nil {
		s.writeError(w, r, "repay", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loanId":    id,
		"remaining": amountString(remaining),
		"closed":    remaining != nil && remaining.Sign() == 0,
	})
}

func (s *Service) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "liquidate", err)
		return
	}
	var req liquidateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
			s.writeError(w, r, "liquidate", err)
			return
		}
	}
	liquidator, err := actor(r, req.Liquidator)
	if err != nil {
		s.writeError(w, r, "liquidate", err)
		return
	}
	result, err := s.engine.Liquidate(r.Context(), liquidator, id)
	if err != nil {
		s.writeError(w, r, "liquidate", err)
		return
	}
	writeJSON(w, http.StatusOK, toLiquidationResponse(result))
}

func (s *Service) handleAccrue(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "accrue_interest", err)
		return
	}
	accrued, err := s.engine.AccrueInterest(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "accrue_interest", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loanId": id, "accruedInterest": amountString(accrued)})
}

func (s *Service) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_loan", err)
		return
	}
	loan, err := s.engine.GetLoan(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get_loan", err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (s *Service) handleLoanHealth(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "loan_health", err)
		return
	}
	health, err := s.engine.GetHealth(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "loan_health", err)
		return
	}
	writeJSON(w, http.StatusOK, toHealthResponse(health))
}

func (s *Service) handleBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	borrower, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, "borrower_loans", err)
		return
	}
	ids, err := s.engine.BorrowerLoans(r.Context(), borrower)
	if err != nil {
		s.writeError(w, r, "borrower_loans", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"borrower": crypto.FromRaw(borrower).String(),
		"loans":    idsOrEmpty(ids),
	})
}

func (s *Service) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.engine.GetConfig(r.Context())
	if err != nil {
		s.writeError(w, r, "get_config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Service) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var cfg lending.Config
	if err := decodeJSON(w, r, s.maxBodyBytes, &cfg); err != nil {
		s.writeError(w, r, "set_config", err)
		return
	}
	if err := s.engine.SetConfig(r.Context(), cfg); err != nil {
		s.writeError(w, r, "set_config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Service) handlePause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := chi.URLParam(r, "module")
		op := "unpause"
		if paused {
			op = "pause"
		}
		if err := s.engine.SetPaused(r.Context(), module, paused); err != nil {
			s.writeError(w, r, op, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": paused})
	}
}

