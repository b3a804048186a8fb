// Package api exposes the tracking and preference HTTP surface: the open
// pixel, the signed click redirect, unsubscribe, and analytics.
package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightpath/email-tracking/internal/ledger"
	"github.com/brightpath/email-tracking/internal/pkg/logger"
	"github.com/brightpath/email-tracking/internal/tokens"
	"github.com/brightpath/email-tracking/internal/tracking"
)

// Handlers holds the dependencies for all HTTP endpoints.
type Handlers struct {
	store      *ledger.Store
	gate       *ledger.PreferenceGate
	signer     *tracking.Signer
	tokenStore tokens.Store
}

// NewHandlers creates the handler set.
func NewHandlers(store *ledger.Store, gate *ledger.PreferenceGate,
	signer *tracking.Signer, tokenStore tokens.Store) *Handlers {
	return &Handlers{store: store, gate: gate, signer: signer, tokenStore: tokenStore}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// TrackOpen serves the 1x1 pixel and records the open. The pixel is served
// with 200 no matter what happens: a broken image in a student's inbox is
// worse than a lost data point.
func (h *Handlers) TrackOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if err := h.store.RecordOpen(r.Context(), token, eventMeta(r)); err != nil {
		logger.Warn("record open failed", "token", token, "error", err)
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(tracking.Pixel)
}

// TrackClick verifies the signature and redirects to the target URL. The
// redirect happens even if the ledger write fails; only a bad or missing
// signature blocks it, since an unsigned redirect is an open redirect.
func (h *Handlers) TrackClick(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	target := r.URL.Query().Get("url")
	sig := r.URL.Query().Get("sig")

	if target == "" || sig == "" {
		http.Error(w, "missing url or sig parameter", http.StatusBadRequest)
		return
	}
	if !h.signer.Verify(token, target, sig) {
		logger.Warn("click signature rejected", "token", token)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	if err := h.store.RecordClick(r.Context(), token, target, eventMeta(r)); err != nil {
		logger.Warn("record click failed", "token", token, "error", err)
	}

	http.Redirect(w, r, target, http.StatusFound)
}

type preferenceRequest struct {
	Email     string `json:"email"`
	EmailType string `json:"email_type"`
	OptOut    bool   `json:"opt_out"`
}

// SetPreference upserts an opt-out/opt-in row.
func (h *Handlers) SetPreference(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Email == "" || req.EmailType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and email_type are required"})
		return
	}

	pref, err := h.gate.SetPreference(r.Context(), req.Email, req.EmailType, req.OptOut)
	if err != nil {
		logger.Error("set preference failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save preference"})
		return
	}
	writeJSON(w, http.StatusOK, pref)
}

// GetPreferences lists a recipient's preference rows.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	prefs, err := h.store.GetPreferences(r.Context(), email)
	if err != nil {
		logger.Error("get preferences failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load preferences"})
		return
	}
	if prefs == nil {
		prefs = []*ledger.Preference{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"email": strings.ToLower(strings.TrimSpace(email)), "preferences": prefs})
}

type unsubscribeRequest struct {
	Email     string `json:"email"`
	EmailType string `json:"email_type"`
	Token     string `json:"token"`
}

type unsubscribeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Unsubscribe redeems a signed single-use unsubscribe token and records the
// opt-out. A replayed or expired token fails without changing anything.
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, unsubscribeResponse{Message: "invalid request body"})
		return
	}

	status, resp := h.redeemUnsubscribe(r, req.Email, req.EmailType, req.Token)
	writeJSON(w, status, resp)
}

// UnsubscribeLanding handles the GET link embedded in email footers.
func (h *Handlers) UnsubscribeLanding(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, resp := h.redeemUnsubscribe(r, q.Get("email"), q.Get("type"), q.Get("tok"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if resp.Success {
		w.Write([]byte("<html><body><h2>You have been unsubscribed.</h2><p>" + resp.Message + "</p></body></html>"))
	} else {
		w.Write([]byte("<html><body><h2>Unable to unsubscribe.</h2><p>" + resp.Message + "</p></body></html>"))
	}
}

func (h *Handlers) redeemUnsubscribe(r *http.Request, email, emailType, token string) (int, unsubscribeResponse) {
	if email == "" || emailType == "" || token == "" {
		return http.StatusBadRequest, unsubscribeResponse{Message: "email, type and token are required"}
	}
	email = strings.ToLower(strings.TrimSpace(email))

	if !h.signer.VerifyUnsubscribe(email, emailType, token) {
		logger.Warn("unsubscribe token rejected", "email", email, "email_type", emailType)
		return http.StatusForbidden, unsubscribeResponse{Message: "invalid unsubscribe link"}
	}

	stored, err := h.tokenStore.Take(r.Context(), tokens.UnsubscribeKey(email, emailType))
	if err == tokens.ErrNotFound {
		return http.StatusGone, unsubscribeResponse{Message: "this unsubscribe link has expired or was already used"}
	}
	if err != nil {
		logger.Error("unsubscribe token lookup failed", "error", err)
		return http.StatusInternalServerError, unsubscribeResponse{Message: "something went wrong, please try again"}
	}
	if stored != token {
		return http.StatusForbidden, unsubscribeResponse{Message: "invalid unsubscribe link"}
	}

	if _, err := h.gate.SetPreference(r.Context(), email, emailType, true); err != nil {
		logger.Error("unsubscribe preference write failed", "error", err)
		return http.StatusInternalServerError, unsubscribeResponse{Message: "something went wrong, please try again"}
	}

	logger.Info("recipient unsubscribed", "email", email, "email_type", emailType)
	return http.StatusOK, unsubscribeResponse{Success: true, Message: "You will no longer receive these emails."}
}

// GetAnalytics aggregates delivery counts per template and status over a
// half-open [start, end) window.
func (h *Handlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if s := q.Get("start"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC3339"})
			return
		}
		start = parsed
	}
	if e := q.Get("end"); e != "" {
		parsed, err := time.Parse(time.RFC3339, e)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be RFC3339"})
			return
		}
		end = parsed
	}
	if !start.Before(end) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be before end"})
		return
	}

	rows, err := h.store.GetAnalytics(r.Context(), start, end, q.Get("template"))
	if err != nil {
		logger.Error("analytics query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load analytics"})
		return
	}
	if rows == nil {
		rows = []ledger.AnalyticsRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"start": start, "end": end, "rows": rows,
	})
}

// GetDelivery returns one delivery record with its click history.
func (h *Handlers) GetDelivery(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rec, err := h.store.GetByToken(r.Context(), token)
	if err == ledger.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "delivery not found"})
		return
	}
	if err != nil {
		logger.Error("get delivery failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load delivery"})
		return
	}

	clicks, err := h.store.GetClickEvents(r.Context(), rec.ID)
	if err != nil {
		logger.Error("get click events failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load delivery"})
		return
	}
	if clicks == nil {
		clicks = []*ledger.ClickEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"delivery": rec, "clicks": clicks})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func eventMeta(r *http.Request) ledger.EventMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ledger.EventMeta{UserAgent: r.UserAgent(), IPAddress: ip}
}
