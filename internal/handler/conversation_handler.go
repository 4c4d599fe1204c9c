package handler

import (
	"net/http"
	"time"

	"courier-relay/internal/domain/conversation"
	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// ConversationHandler serves stored conversation history.
type ConversationHandler struct {
	service *services.ConversationService
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// List returns the conversations the caller participates in.
func (h *ConversationHandler) List(c *gin.Context) {
	handle, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	items, err := h.service.List(c.Request.Context(), handle)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.ConversationDTO, len(items))
	for i, item := range items {
		out[i] = httpdto.ConversationDTO{
			ConversationID: item.ConversationID,
			Peer:           item.Peer,
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationsResponse{
		Conversations: out,
	}))
}

// History returns the stored envelopes between the caller and a peer,
// oldest first. The caller is always one side of the conversation, so
// the identifier derivation doubles as the access check.
func (h *ConversationHandler) History(c *gin.Context) {
	handle, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}
	peer := c.Param("peer")

	records, err := h.service.History(c.Request.Context(), handle, peer)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.RecordDTO, len(records))
	for i, r := range records {
		out[i] = httpdto.RecordDTO{
			Seq:       r.Seq,
			Sender:    r.Sender,
			Recipient: r.Recipient,
			Envelope:  r.Envelope,
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.HistoryResponse{
		ConversationID: conversation.ID(handle, peer),
		Records:        out,
	}))
}
