package handler

import (
	"io"
	"net/http"
	"time"

	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AttachmentHandler serves encrypted attachment blobs. Blob content is
// opaque to the relay; clients encrypt before uploading.
type AttachmentHandler struct {
	service *services.AttachmentService
}

// NewAttachmentHandler creates an attachment handler.
func NewAttachmentHandler(service *services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{service: service}
}

// Upload stores the request body as a blob owned by the caller.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	owner, ok := services.IdentityFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
		return
	}

	// Read one byte past the cap so the service can tell an at-limit
	// blob from an oversized one.
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, services.MaxAttachmentSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("unreadable body", "INVALID_REQUEST"))
		return
	}

	info, err := h.service.Upload(c.Request.Context(), owner, c.ContentType(), data)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.AttachmentResponse{
		ID:         info.ID,
		Key:        info.Key,
		Size:       info.Size,
		URL:        info.URL,
		UploadedAt: info.UploadedAt.Format(time.RFC3339),
	}))
}

// Download returns a stored blob. Possession of the id is the access
// check: ids are unguessable and travel only inside encrypted
// messages.
func (h *AttachmentHandler) Download(c *gin.Context) {
	owner := c.Param("owner")
	id := c.Param("id")

	data, contentType, err := h.service.Download(c.Request.Context(), owner, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Data(http.StatusOK, contentType, data)
}
