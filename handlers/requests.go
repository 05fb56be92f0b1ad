package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leaveflow/apperr"
	"leaveflow/effects"
	"leaveflow/middleware"
	"leaveflow/models"
	"leaveflow/workflow"
)

type RequestLister interface {
	ListByRequester(ctx context.Context, requesterID uint) ([]models.Request, error)
	PendingForApprover(ctx context.Context, approverID uint) ([]models.Request, error)
}

type BalanceLister interface {
	Balances(ctx context.Context, ownerID uint) ([]models.Balance, error)
}

// RequestHandler exposes the approval workflow. Effects of every committed
// transition are executed before the response is written.
type RequestHandler struct {
	engine   *workflow.Engine
	executor *effects.Executor
	requests RequestLister
	balances BalanceLister
	log      zerolog.Logger
}

func NewRequestHandler(engine *workflow.Engine, executor *effects.Executor, requests RequestLister, balances BalanceLister, log zerolog.Logger) *RequestHandler {
	return &RequestHandler{
		engine:   engine,
		executor: executor,
		requests: requests,
		balances: balances,
		log:      log,
	}
}

type submitRequest struct {
	Kind       string    `json:"kind"`
	Category   string    `json:"category"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Hours      float64   `json:"hours"`
	Reason     string    `json:"reason"`
	Attachment string    `json:"attachment"`
}

func (s submitRequest) payload() (workflow.Payload, error) {
	switch models.RequestKind(strings.ToLower(s.Kind)) {
	case models.KindLeave:
		return workflow.LeavePayload{
			Category:   s.Category,
			Start:      s.Start,
			End:        s.End,
			Hours:      s.Hours,
			Reason:     s.Reason,
			Attachment: s.Attachment,
		}, nil
	case models.KindOvertime:
		return workflow.OvertimePayload{
			Start:      s.Start,
			End:        s.End,
			Hours:      s.Hours,
			Reason:     s.Reason,
			Attachment: s.Attachment,
		}, nil
	}
	return nil, apperr.Validation("kind", "must be leave or overtime")
}

type requestResponse struct {
	Request *models.Request          `json:"request"`
	Records []*models.ApprovalRecord `json:"records"`
}

type decisionRequest struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())

	var body submitRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	payload, err := body.payload()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := h.engine.Submit(r.Context(), user.ID, payload)
	h.respond(w, r, http.StatusCreated, result, err)
}

func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := h.engine.Get(r.Context(), user.ID, id)
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, actorID, requestID uint, body decisionRequest) (*workflow.Result, error) {
		return h.engine.Approve(ctx, actorID, requestID, body.Comment)
	})
}

func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, actorID, requestID uint, body decisionRequest) (*workflow.Result, error) {
		reason := body.Reason
		if reason == "" {
			reason = body.Comment
		}
		return h.engine.Reject(ctx, actorID, requestID, reason)
	})
}

func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, actorID, requestID uint, _ decisionRequest) (*workflow.Result, error) {
		return h.engine.Cancel(ctx, actorID, requestID)
	})
}

func (h *RequestHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	requests, err := h.requests.ListByRequester(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// PendingApprovals lists the requests waiting on the caller's decision.
func (h *RequestHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	requests, err := h.requests.PendingForApprover(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *RequestHandler) MyBalances(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	balances, err := h.balances.Balances(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

type decideFunc func(ctx context.Context, actorID, requestID uint, body decisionRequest) (*workflow.Result, error)

func (h *RequestHandler) decide(w http.ResponseWriter, r *http.Request, fn decideFunc) {
	user := middleware.GetUserFromContext(r.Context())
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var body decisionRequest
	if err := decodeOptionalJSON(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	result, err := fn(r.Context(), user.ID, id, body)
	h.respond(w, r, http.StatusOK, result, err)
}

func (h *RequestHandler) respond(w http.ResponseWriter, r *http.Request, status int, result *workflow.Result, err error) {
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.executor.Execute(r.Context(), result.Effects)
	writeJSON(w, status, requestResponse{Request: result.Request, Records: result.Records})
}
