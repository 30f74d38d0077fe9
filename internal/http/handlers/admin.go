package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/autoclass/attendd/internal/attend"
	"github.com/autoclass/attendd/internal/model"
	"github.com/autoclass/attendd/internal/poll"
	"github.com/autoclass/attendd/internal/registry"
	"github.com/autoclass/attendd/internal/store"
)

// AdminHandler exposes the management operations over HTTP, mirroring the
// console commands. It is meant for localhost use only.
type AdminHandler struct {
	reg    *registry.Registry
	store  *store.AccountStore
	svc    *attend.Service
	poller *poll.Poller
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(reg *registry.Registry, accountStore *store.AccountStore, svc *attend.Service, poller *poll.Poller) *AdminHandler {
	return &AdminHandler{reg: reg, store: accountStore, svc: svc, poller: poller}
}

// accountView is the JSON listing of one account; credentials never leave
// the process, and student numbers are masked.
type accountView struct {
	StudentNumber string `json:"student_number"`
	LoggedIn      bool   `json:"logged_in"`
	CoursesToday  int    `json:"courses_today"`
	SignedToday   int    `json:"signed_today"`
}

// addAccountRequest is the request body for POST /accounts
type addAccountRequest struct {
	StudentNumber string `json:"student_number"`
	Password      string `json:"password"`
}

// HandleListAccounts returns all registered accounts.
func (h *AdminHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.reg.Snapshot()
	views := make([]accountView, 0, len(accounts))
	for _, acct := range accounts {
		acct.Lock()
		views = append(views, accountView{
			StudentNumber: model.MaskStudentNumber(acct.StudentNumber),
			LoggedIn:      acct.LoggedIn,
			CoursesToday:  len(acct.TodayCourses),
			SignedToday:   len(acct.SignedCourses),
		})
		acct.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

// HandleAddAccount registers a new account, persists it, and kicks off its
// first check in the background.
func (h *AdminHandler) HandleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.StudentNumber == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "student_number and password are required")
		return
	}

	acct := model.NewAccount(req.StudentNumber, req.Password)
	if err := h.reg.Add(acct); err != nil {
		if errors.Is(err, registry.ErrDuplicate) {
			writeError(w, http.StatusConflict, "account already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to register account")
		return
	}
	if err := h.store.Save(h.reg); err != nil {
		log.Printf("save accounts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist account")
		return
	}

	// First check runs detached so the request doesn't block on the SSO
	// round-trips.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := h.svc.ProcessAccount(ctx, acct, time.Now(), uuid.New(), false); err != nil {
			log.Printf("first check for %s: %v", model.MaskStudentNumber(acct.StudentNumber), err)
		}
	}()

	writeJSON(w, http.StatusCreated, map[string]string{
		"student_number": model.MaskStudentNumber(req.StudentNumber),
	})
}

// HandleRemoveAccount deletes an account and persists the change.
func (h *AdminHandler) HandleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	studentNumber := chi.URLParam(r, "studentNumber")
	if err := h.reg.Remove(studentNumber); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to remove account")
		return
	}
	if err := h.store.Save(h.reg); err != nil {
		log.Printf("save accounts: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to persist removal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCheck triggers an out-of-band cycle over all accounts.
func (h *AdminHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		h.poller.RunNow(ctx)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "check_started"})
}

// HandleHealth reports liveness.
func (h *AdminHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
