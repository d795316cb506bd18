package handlers

import (
	"github.com/orkutrevival/backend/internal/auth"
	"github.com/orkutrevival/backend/internal/calls"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/ledger"
	"github.com/orkutrevival/backend/internal/search"
)

// Notifier pushes realtime events to every connection of a profile
type Notifier interface {
	Notify(userID, eventType string, payload interface{})
}

// Handlers contains all HTTP handlers for the API
type Handlers struct {
	auth     *auth.Service
	calls    *calls.Service
	ledger   *ledger.Service
	search   *search.Service
	notifier Notifier

	trustEmailHeader bool
}

// NewHandlers creates a new handlers instance
func NewHandlers(authService *auth.Service) *Handlers {
	return &Handlers{auth: authService}
}

// SetCallService sets the call lifecycle service
func (h *Handlers) SetCallService(svc *calls.Service) {
	h.calls = svc
}

// SetLedger sets the activity ledger
func (h *Handlers) SetLedger(svc *ledger.Service) {
	h.ledger = svc
}

// SetSearch sets the community and profile search service
func (h *Handlers) SetSearch(svc *search.Service) {
	h.search = svc
}

// SetTrustEmailHeader lets community writes without a token take the actor
// from X-User-Email or the body
func (h *Handlers) SetTrustEmailHeader(trust bool) {
	h.trustEmailHeader = trust
}

// SetNotifier sets the realtime event sink, normally the websocket hub
func (h *Handlers) SetNotifier(n Notifier) {
	h.notifier = n
}

func (h *Handlers) notify(userID, eventType string, payload interface{}) {
	if h.notifier == nil || userID == "" {
		return
	}
	h.notifier.Notify(userID, eventType, payload)
}

// searcher returns the configured search service, or a database only one
func (h *Handlers) searcher() *search.Service {
	if h.search != nil {
		return h.search
	}
	return search.NewService(nil, database.DB, nil)
}
