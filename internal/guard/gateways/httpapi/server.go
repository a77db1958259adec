// Package httpapi exposes the guard over a local HTTP surface: the request
// ingress the host interception layer calls for verdicts, the control
// endpoints the packaged UI talks to, and read-only ledger/allowlist views
// for the popup and options pages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/domain"
	"github.com/probegate/probegate/internal/guard/repos/allowlist"
	"github.com/probegate/probegate/internal/guard/repos/ledger"
	"github.com/probegate/probegate/internal/guard/services/engine"
)

// Dispatcher is the control-message surface the UI endpoints forward to.
type Dispatcher interface {
	Dispatch(msg domain.ControlMessage) (domain.PopupState, error)
	SetNotificationsAllowed(origin string, allowed bool) error
}

// Server hosts the HTTP surface and doubles as the live request stream the
// lifecycle attaches the engine to: while detached, every verdict request
// answers cancel=false.
type Server struct {
	addr       string
	engine     *engine.Engine
	dispatcher Dispatcher
	ledger     *ledger.Registry
	allow      allowlist.Repository
	logger     log.Logger

	mu       sync.RWMutex
	attached bool

	srv *http.Server
	ln  net.Listener
}

// Options configures a Server.
type Options struct {
	Addr       string
	Engine     *engine.Engine
	Dispatcher Dispatcher
	Ledger     *ledger.Registry
	Allowlist  allowlist.Repository
	Logger     log.Logger
}

// New constructs a Server. It does not listen until Start.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Server{
		addr:       opts.Addr,
		engine:     opts.Engine,
		dispatcher: opts.Dispatcher,
		ledger:     opts.Ledger,
		allow:      opts.Allowlist,
		logger:     opts.Logger,
	}
}

// SetDispatcher installs the control-message dispatcher. Wiring is circular:
// the dispatcher drives the lifecycle, and the lifecycle attaches to this
// server, so the dispatcher lands last. Must be called before Start.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// Attach wires the engine into the verdict path. Implements the lifecycle
// Attacher contract.
func (s *Server) Attach() error {
	s.mu.Lock()
	s.attached = true
	s.mu.Unlock()
	return nil
}

// Detach takes the engine off the verdict path; requests pass unfiltered.
func (s *Server) Detach() error {
	s.mu.Lock()
	s.attached = false
	s.mu.Unlock()
	return nil
}

// Attached reports the live attachment state.
func (s *Server) Attached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attached
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/evaluate", s.handleEvaluate).Methods(http.MethodPost)
	r.HandleFunc("/events/navigation", s.handleNavigation).Methods(http.MethodPost)
	r.HandleFunc("/control/toggle", s.handleToggle).Methods(http.MethodPost)
	r.HandleFunc("/control/popup", s.handlePopup).Methods(http.MethodGet)
	r.HandleFunc("/control/notifications", s.handleNotifications).Methods(http.MethodPut)
	r.HandleFunc("/tabs/{id}/ledger", s.handleLedger).Methods(http.MethodGet)
	r.HandleFunc("/allowlist", s.handleAllowlist).Methods(http.MethodGet)
	r.HandleFunc("/allowlist/{host}", s.handleAllowlistPut).Methods(http.MethodPut)
	r.HandleFunc("/allowlist/{host}", s.handleAllowlistDelete).Methods(http.MethodDelete)
	return r
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(map[string]any{"error": err}, "HTTP surface stopped unexpectedly")
		}
	}()
	s.logger.Info(map[string]any{"address": s.Address()}, "HTTP surface listening")
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Address returns the bound address.
func (s *Server) Address() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// verdictResponse is the ingress reply contract: cancel=true kills the request.
type verdictResponse struct {
	Cancel bool   `json:"cancel"`
	Reason string `json:"reason,omitempty"`
}

type evaluateRequest struct {
	OriginURL   string `json:"originUrl"`
	DocumentURL string `json:"documentUrl"`
	RequestURL  string `json:"requestUrl"`
	ThirdParty  bool   `json:"thirdParty"`
	TabID       int    `json:"tabId"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var in evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if !s.Attached() {
		writeJSON(w, verdictResponse{Cancel: false})
		return
	}
	v := s.engine.Evaluate(r.Context(), domain.RequestDescriptor{
		OriginURL:   in.OriginURL,
		DocumentURL: in.DocumentURL,
		RequestURL:  in.RequestURL,
		ThirdParty:  in.ThirdParty,
		TabID:       in.TabID,
	})
	resp := verdictResponse{Cancel: v.Cancel}
	if v.Cancel {
		resp.Reason = v.Reason.String()
	}
	writeJSON(w, resp)
}

type navigationEvent struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var in navigationEvent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	s.engine.Navigated(in.TabID, in.URL)
	w.WriteHeader(http.StatusNoContent)
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var in toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	state, err := s.dispatcher.Dispatch(domain.ControlMessage{
		Origin:  r.Header.Get("Origin"),
		Kind:    domain.ControlToggleEnabled,
		Enabled: in.Enabled,
	})
	if s.rejectOrFail(w, err) {
		return
	}
	writeJSON(w, state)
}

func (s *Server) handlePopup(w http.ResponseWriter, r *http.Request) {
	state, err := s.dispatcher.Dispatch(domain.ControlMessage{
		Origin: r.Header.Get("Origin"),
		Kind:   domain.ControlPopupInit,
	})
	if s.rejectOrFail(w, err) {
		return
	}
	writeJSON(w, state)
}

type notificationsRequest struct {
	Allowed bool `json:"allowed"`
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var in notificationsRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if s.rejectOrFail(w, s.dispatcher.SetNotificationsAllowed(r.Header.Get("Origin"), in.Allowed)) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "bad tab id", http.StatusBadRequest)
		return
	}
	entry, ok := s.ledger.Snapshot(id)
	if !ok {
		http.Error(w, "no ledger for tab", http.StatusNotFound)
		return
	}
	writeJSON(w, entry)
}

func (s *Server) handleAllowlist(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.allow.Entries()
	if err != nil {
		http.Error(w, "allowlist unavailable", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []string{}
	}
	writeJSON(w, entries)
}

func (s *Server) handleAllowlistPut(w http.ResponseWriter, r *http.Request) {
	if err := s.allow.Add(mux.Vars(r)["host"]); err != nil {
		http.Error(w, "allowlist write failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllowlistDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.allow.Remove(mux.Vars(r)["host"]); err != nil {
		http.Error(w, "allowlist write failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// rejectOrFail maps dispatcher errors onto HTTP statuses. Returns true when
// the response has been written.
func (s *Server) rejectOrFail(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrUnauthorizedOrigin) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return true
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
