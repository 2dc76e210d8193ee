package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"clipstream/internal/repository"
	"clipstream/internal/transport/http/response"
)

type AuditHandler struct {
	events *repository.AuthEventRepository
}

func NewAuditHandler(events *repository.AuthEventRepository) *AuditHandler {
	return &AuditHandler{events: events}
}

// ListEvents returns the caller's recent session lifecycle events. Users can
// only read their own trail.
func (h *AuditHandler) ListEvents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	requested, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || uint(requested) != userID {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "cannot read another user's events")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.events.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list auth events failed")
		return
	}

	response.OK(c, gin.H{"events": events})
}
