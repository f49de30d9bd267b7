// Package api exposes a Ledger over HTTP as JSON.
//
// The caller of every mutating request is the address in the X-Pledge-Caller
// header. Amounts are decimal strings in the ledger's major unit ("0.05").
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// CallerHeader carries the address a request acts as.
const CallerHeader = "X-Pledge-Caller"

// Handler serves the ledger routes.
type Handler struct {
	ledger   *pledge.Ledger
	logger   *slog.Logger
	basePath string
	router   *mux.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithBasePath mounts the routes under a prefix such as "/pledge".
func WithBasePath(path string) Option {
	return func(h *Handler) { h.basePath = strings.TrimRight(path, "/") }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New builds the router for l.
func New(l *pledge.Ledger, opts ...Option) *Handler {
	h := &Handler{
		ledger: l,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.router = mux.NewRouter()
	r := h.router
	if h.basePath != "" {
		r = h.router.PathPrefix(h.basePath).Subrouter()
	}

	r.HandleFunc("/managers", h.listManagers).Methods(http.MethodGet)
	r.HandleFunc("/managers/{id:[0-9]+}", h.getManager).Methods(http.MethodGet)
	r.HandleFunc("/donors", h.addDonor).Methods(http.MethodPost)
	r.HandleFunc("/delegates", h.addDelegate).Methods(http.MethodPost)
	r.HandleFunc("/projects", h.addProject).Methods(http.MethodPost)
	r.HandleFunc("/projects/{id:[0-9]+}/cancel", h.cancelProject).Methods(http.MethodPost)

	r.HandleFunc("/donations", h.donate).Methods(http.MethodPost)
	r.HandleFunc("/notes", h.listNotes).Methods(http.MethodGet)
	r.HandleFunc("/notes/{id:[0-9]+}", h.getNote).Methods(http.MethodGet)
	r.HandleFunc("/notes/{id:[0-9]+}/lineage", h.lineage).Methods(http.MethodGet)
	r.HandleFunc("/notes/{id:[0-9]+}/transfer", h.transfer).Methods(http.MethodPost)
	r.HandleFunc("/notes/{id:[0-9]+}/withdraw", h.withdraw).Methods(http.MethodPost)

	r.HandleFunc("/payments", h.listPayments).Methods(http.MethodGet)
	r.HandleFunc("/payments/confirm", h.multiConfirm).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}", h.getPayment).Methods(http.MethodGet)
	r.HandleFunc("/payments/{id}/confirm", h.confirmPayment).Methods(http.MethodPost)
	r.HandleFunc("/payments/{id}/cancel", h.cancelPayment).Methods(http.MethodPost)

	r.HandleFunc("/state", h.state).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.stats).Methods(http.MethodGet)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// ──────────────────────────────────────────────────
// Request and response bodies
// ──────────────────────────────────────────────────

type addManagerRequest struct {
	Name       string `json:"name"`
	Reviewer   string `json:"reviewer,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
}

type donateRequest struct {
	Donor  manager.ID `json:"donor"`
	Target manager.ID `json:"target"`
	Amount string     `json:"amount"`
}

type transferRequest struct {
	As     manager.ID `json:"as"`
	Amount string     `json:"amount"`
	Target manager.ID `json:"target"`
}

type withdrawRequest struct {
	As     manager.ID `json:"as"`
	Amount string     `json:"amount"`
}

type multiConfirmRequest struct {
	Payments []id.PaymentID `json:"payments"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

type failedPayment struct {
	Payment id.PaymentID `json:"payment"`
	Error   string       `json:"error"`
}

type multiConfirmResponse struct {
	Confirmed []id.PaymentID  `json:"confirmed"`
	Failed    []failedPayment `json:"failed,omitempty"`
}

type statsResponse struct {
	Managers uint64 `json:"managers"`
	Notes    uint64 `json:"notes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ──────────────────────────────────────────────────
// Managers
// ──────────────────────────────────────────────────

func (h *Handler) addDonor(w http.ResponseWriter, r *http.Request) {
	var req addManagerRequest
	if !h.decode(w, r, &req) {
		return
	}
	commit, err := parseCommitTime(req.CommitTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.ledger.AddDonor(r.Context(), caller(r), req.Name, commit)
	h.created(w, r, uint64(m), err)
}

func (h *Handler) addDelegate(w http.ResponseWriter, r *http.Request) {
	var req addManagerRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.ledger.AddDelegate(r.Context(), caller(r), req.Name)
	h.created(w, r, uint64(m), err)
}

func (h *Handler) addProject(w http.ResponseWriter, r *http.Request) {
	var req addManagerRequest
	if !h.decode(w, r, &req) {
		return
	}
	commit, err := parseCommitTime(req.CommitTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.ledger.AddProject(r.Context(), caller(r), req.Name, types.Address(req.Reviewer), commit)
	h.created(w, r, uint64(m), err)
}

func (h *Handler) cancelProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.managerID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.CancelProject(r.Context(), caller(r), projectID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getManager(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.managerID(w, r)
	if !ok {
		return
	}
	m, err := h.ledger.GetManager(r.Context(), managerID)
	h.respond(w, r, m, err)
}

func (h *Handler) listManagers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := manager.ListOpts{Kind: manager.Kind(q.Get("kind"))}
	if !h.window(w, r, &opts.Limit, &opts.Offset) {
		return
	}
	list, err := h.ledger.ListManagers(r.Context(), opts)
	h.respond(w, r, list, err)
}

// ──────────────────────────────────────────────────
// Notes
// ──────────────────────────────────────────────────

func (h *Handler) donate(w http.ResponseWriter, r *http.Request) {
	var req donateRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := h.amount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.ledger.Donate(r.Context(), caller(r), req.Donor, req.Target, amount)
	h.created(w, r, uint64(n), err)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	noteID, ok := h.noteID(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := h.amount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.ledger.Transfer(r.Context(), caller(r), req.As, noteID, amount, req.Target)
	h.created(w, r, uint64(n), err)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	noteID, ok := h.noteID(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := h.amount(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.ledger.Withdraw(r.Context(), caller(r), req.As, noteID, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusCreated, res)
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request) {
	noteID, ok := h.noteID(w, r)
	if !ok {
		return
	}
	n, err := h.ledger.GetNote(r.Context(), noteID)
	h.respond(w, r, n, err)
}

func (h *Handler) lineage(w http.ResponseWriter, r *http.Request) {
	noteID, ok := h.noteID(w, r)
	if !ok {
		return
	}
	chain, err := h.ledger.Lineage(r.Context(), noteID)
	h.respond(w, r, chain, err)
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := note.ListOpts{PaymentState: note.PaymentState(q.Get("state"))}
	if s := q.Get("owner"); s != "" {
		owner, err := manager.ParseID(s)
		if err != nil {
			h.fail(w, r, badRequest(err))
			return
		}
		opts.Owner = owner
	}
	if !h.window(w, r, &opts.Limit, &opts.Offset) {
		return
	}
	list, err := h.ledger.ListNotes(r.Context(), opts)
	h.respond(w, r, list, err)
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	p, err := h.ledger.GetPayment(r.Context(), paymentID)
	h.respond(w, r, p, err)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := vault.ListOpts{State: vault.State(q.Get("state"))}
	if s := q.Get("owner"); s != "" {
		owner, err := manager.ParseID(s)
		if err != nil {
			h.fail(w, r, badRequest(err))
			return
		}
		opts.Owner = owner
	}
	if !h.window(w, r, &opts.Limit, &opts.Offset) {
		return
	}
	list, err := h.ledger.ListPayments(r.Context(), opts)
	h.respond(w, r, list, err)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	paid, err := h.ledger.ConfirmPayment(r.Context(), caller(r), paymentID)
	h.created(w, r, uint64(paid), err)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := h.paymentID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.CancelPayment(r.Context(), caller(r), paymentID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// multiConfirm answers 200 even when some payments fail; the failures are
// listed next to the confirmed ids.
func (h *Handler) multiConfirm(w http.ResponseWriter, r *http.Request) {
	var req multiConfirmRequest
	if !h.decode(w, r, &req) {
		return
	}
	confirmed, err := h.ledger.MultiConfirm(r.Context(), caller(r), req.Payments)
	resp := multiConfirmResponse{Confirmed: confirmed}
	if resp.Confirmed == nil {
		resp.Confirmed = []id.PaymentID{}
	}

	var merr pledge.MultiError
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			var perr pledge.PaymentError
			if errors.As(e, &perr) {
				resp.Failed = append(resp.Failed, failedPayment{Payment: perr.PaymentID, Error: perr.Err.Error()})
			}
		}
	} else if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusOK, resp)
}

// ──────────────────────────────────────────────────
// Ledger-wide
// ──────────────────────────────────────────────────

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.State(r.Context())
	h.respond(w, r, st, err)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	managers, err := h.ledger.NumberOfManagers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	notes, err := h.ledger.NumberOfNotes(r.Context())
	h.respond(w, r, statsResponse{Managers: managers, Notes: notes}, err)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func caller(r *http.Request) types.Address {
	return types.Address(r.Header.Get(CallerHeader))
}

// badRequest marks err as a client input problem.
func badRequest(err error) error {
	return pledge.ValidationError{Field: "request", Message: err.Error()}
}

func parseCommitTime(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, pledge.ValidationError{Field: "commit_time", Message: err.Error()}
	}
	return d, nil
}

func (h *Handler) amount(s string) (types.Money, error) {
	m, err := types.Parse(s, h.ledger.Currency())
	if err != nil {
		return types.Money{}, pledge.ValidationError{Field: "amount", Message: err.Error()}
	}
	return m, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.fail(w, r, badRequest(err))
		return false
	}
	return true
}

func (h *Handler) managerID(w http.ResponseWriter, r *http.Request) (manager.ID, bool) {
	v, err := manager.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, badRequest(err))
		return manager.None, false
	}
	return v, true
}

func (h *Handler) noteID(w http.ResponseWriter, r *http.Request) (note.ID, bool) {
	v, err := note.ParseID(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, badRequest(err))
		return 0, false
	}
	return v, true
}

func (h *Handler) paymentID(w http.ResponseWriter, r *http.Request) (id.PaymentID, bool) {
	v, err := id.ParsePaymentID(mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, badRequest(err))
		return id.PaymentID{}, false
	}
	return v, true
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request, limit, offset *int) bool {
	q := r.URL.Query()
	for key, dst := range map[string]*int{"limit": limit, "offset": offset} {
		s := q.Get(key)
		if s == "" {
			continue
		}
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			h.fail(w, r, pledge.ValidationError{Field: key, Message: "must be a non-negative integer"})
			return false
		}
		*dst = v
	}
	return true
}

func (h *Handler) created(w http.ResponseWriter, r *http.Request, v uint64, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusCreated, idResponse{ID: v})
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusOK, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("pledge api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	h.write(w, code, errorResponse{Error: err.Error()})
}

func (h *Handler) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("pledge api encode failed", "error", err)
	}
}

// statusOf maps ledger errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case pledge.IsNotFound(err):
		return http.StatusNotFound
	case pledge.IsAuthorizationError(err):
		return http.StatusForbidden
	case errors.Is(err, pledge.ErrInvalidInput),
		errors.Is(err, pledge.ErrInvalidAmount),
		errors.Is(err, pledge.ErrInvalidTarget),
		errors.Is(err, pledge.ErrInsufficientAmount):
		return http.StatusBadRequest
	case errors.Is(err, pledge.ErrInvalidState),
		errors.Is(err, pledge.ErrProjectCanceled),
		errors.Is(err, pledge.ErrTimeLocked),
		errors.Is(err, pledge.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, pledge.ErrSinkFailed):
		return http.StatusBadGateway
	case errors.Is(err, pledge.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
