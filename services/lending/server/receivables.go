package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"nexum/crypto"
	"nexum/native/receivables"
)

func (s *Service) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	creditor, err := actor(r, req.Creditor)
	if err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	face, err := parseAmount("faceValue", req.FaceValue)
	if err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	debtor, err := parseHash("debtorHash", req.DebtorHash)
	if err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	proof, err := parseHash("proofHash", req.ProofHash)
	if err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	id, err := s.engine.MintReceivable(r.Context(), creditor, receivables.MintParams{
		DebtorHash:   debtor,
		FaceValue:    face,
		Currency:     req.Currency,
		MaturityDate: req.MaturityDate,
		ProofHash:    proof,
		RiskScore:    req.RiskScore,
		MetadataURI:  req.MetadataURI,
	})
	if err != nil {
		s.writeError(w, r, "mint_receivable", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"id": id})
}

func (s *Service) handleTransferReceivable(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "transfer_receivable", err)
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeError(w, r, "transfer_receivable", err)
		return
	}
	from, err := actor(r, req.From)
	if err != nil {
		s.writeError(w, r, "transfer_receivable", err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		s.writeError(w, r, "transfer_receivable", err)
		return
	}
	if err := s.engine.TransferReceivable(r.Context(), id, from, to); err != nil {
		s.writeError(w, r, "transfer_receivable", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleSettle(w http.ResponseWriter, r *http.Request) {
	s.closeReceivable(w, r, "settle_receivable", s.engine.SettleReceivable)
}

func (s *Service) handleMarkDefault(w http.ResponseWriter, r *http.Request) {
	s.closeReceivable(w, r, "default_receivable", s.engine.DefaultReceivable)
}

func (s *Service) handleMature(w http.ResponseWriter, r *http.Request) {
	s.closeReceivable(w, r, "mature_receivable", s.engine.MatureReceivable)
}

func (s *Service) closeReceivable(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uint64) error) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if err := fn(r.Context(), id); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	rec, err := s.engine.GetReceivable(r.Context(), id)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceivableResponse(rec))
}

func (s *Service) handleGetReceivable(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, "get_receivable", err)
		return
	}
	rec, err := s.engine.GetReceivable(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "get_receivable", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceivableResponse(rec))
}

func (s *Service) handleOwnerReceivables(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, r, "owner_receivables", err)
		return
	}
	ids, err := s.engine.OwnerReceivables(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, "owner_receivables", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":       crypto.FromRaw(owner).String(),
		"receivables": idsOrEmpty(ids),
	})
}

func (s *Service) handleReceivableStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.ReceivableStats(r.Context())
	if err != nil {
		s.writeError(w, r, "receivable_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
