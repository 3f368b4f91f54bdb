package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexum/crypto"
)

func (s *Service) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	depositor, err := actor(r, req.Depositor)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	shares, err := s.engine.Deposit(r.Context(), depositor, amount)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shares": amountString(shares)})
}

func (s *Service) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	depositor, err := actor(r, req.Depositor)
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	amount, err := s.engine.Withdraw(r.Context(), depositor, shares)
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amountString(amount)})
}

func (s *Service) handleWithdrawReserves(w http.ResponseWriter, r *http.Request) {
	var req reservesRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "withdraw_reserves", err)
		return
	}
	recipient, err := actor(r, req.Recipient)
	if err != nil {
		s.writeError(w, r, "withdraw_reserves", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "withdraw_reserves", err)
		return
	}
	if err := s.engine.WithdrawReserves(r.Context(), recipient, amount); err != nil {
		s.writeError(w, r, "withdraw_reserves", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGetVault(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.GetVault(r.Context())
	if err != nil {
		s.writeError(w, r, "get_vault", err)
		return
	}
	writeJSON(w, http.StatusOK, toVaultResponse(snapshot))
}

func (s *Service) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	depositor, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, "get_position", err)
		return
	}
	position, err := s.engine.GetPosition(r.Context(), depositor)
	if err != nil {
		s.writeError(w, r, "get_position", err)
		return
	}
	resp := positionResponse{
		Depositor: crypto.FromRaw(depositor).String(),
		Value:     amountString(position.Value),
		Shares:    "0",
	}
	if position.Position != nil {
		resp.Shares = amountString(position.Position.Shares)
		resp.DepositTimestamp = position.Position.DepositTimestamp
	}
	writeJSON(w, http.StatusOK, resp)
}
