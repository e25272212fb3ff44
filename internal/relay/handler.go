package relay

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"paydiag-backend/internal/shared/server/middleware"
	"paydiag-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the relay service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches relay routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.GET("/history", h.listHistory)
	rg.GET("/usage", h.getUsage)
}

type analyzeRequest struct {
	Doc  string `json:"doc"`
	Type string `json:"type"`
}

func (h *Handler) analyze(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set("platform", req.Type)

	result, err := h.Svc.Analyze(c.Request.Context(), identity, Request{
		Document: req.Doc,
		Platform: req.Type,
	})
	if err != nil {
		var vErr *ValidationError
		var uErr *UpstreamError
		var pErr *PersistenceError
		switch {
		case errors.As(err, &vErr):
			c.Set("relayOutcome", "rejected")
			respond.Error(c, http.StatusBadRequest, "validation_error", vErr.Error(), []map[string]string{
				{"field": vErr.Field, "issue": vErr.Reason},
			})
		case errors.Is(err, ErrQuotaExceeded):
			c.Set("relayOutcome", "denied")
			respond.Error(c, http.StatusTooManyRequests, "quota_exceeded", "Free quota used up for today. Please come back later.", nil)
		case errors.Is(err, ErrUpstreamUnavailable):
			c.Set("relayOutcome", "unavailable")
			respond.Error(c, http.StatusBadGateway, "upstream_unavailable", "The analysis service could not be reached. Please try again.", nil)
		case errors.As(err, &uErr):
			c.Set("relayOutcome", "upstream_error")
			respond.Error(c, http.StatusBadGateway, "upstream_error", uErr.Message, nil)
		case errors.As(err, &pErr):
			c.Set("relayOutcome", "ledger_unavailable")
			respond.Error(c, http.StatusInternalServerError, "persistence_error", "Could not check your quota. Please try again.", nil)
		default:
			c.Set("relayOutcome", "internal_error")
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to run analysis", nil)
		}
		return
	}

	if result.Persisted {
		c.Set("relayOutcome", "recorded")
	} else {
		c.Set("relayOutcome", "record_failed")
	}
	respond.OK(c, gin.H{"result": result.Text})
}

func (h *Handler) listHistory(c *gin.Context) {
	if isGuest, ok := c.Get("isGuest"); ok {
		if guest, ok2 := isGuest.(bool); ok2 && guest {
			respond.Error(c, http.StatusUnauthorized, "login_required", "Login required to view history", nil)
			return
		}
	}

	identity := middleware.IdentityFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	events, err := h.Svc.History(c.Request.Context(), identity, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list history", nil)
		return
	}

	items := make([]gin.H, 0, len(events))
	for _, e := range events {
		items = append(items, gin.H{
			"id":          e.ID,
			"companyType": e.CompanyType,
			"inputDoc":    e.InputDoc,
			"result":      e.Result,
			"createdAt":   e.CreatedAt,
		})
	}
	respond.OK(c, gin.H{"items": items})
}

func (h *Handler) getUsage(c *gin.Context) {
	identity := middleware.IdentityFromContext(c)

	usage, err := h.Svc.Usage(c.Request.Context(), identity)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch usage", nil)
		return
	}
	respond.OK(c, usage)
}
