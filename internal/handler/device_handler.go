package handler

import (
	"net/http"
	"time"

	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// DeviceHandler serves the public device directory.
type DeviceHandler struct {
	service *services.DirectoryService
}

// NewDeviceHandler creates a device directory handler.
func NewDeviceHandler(service *services.DirectoryService) *DeviceHandler {
	return &DeviceHandler{service: service}
}

// List returns the registered devices and public keys for an identity.
// Any authenticated identity may look up any other: senders need the
// keys before they can encrypt.
func (h *DeviceHandler) List(c *gin.Context) {
	handle := c.Param("handle")

	devices, err := h.service.Devices(c.Request.Context(), handle)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.PublicDeviceDTO, len(devices))
	for i, d := range devices {
		out[i] = httpdto.PublicDeviceDTO{
			DeviceID:     d.DeviceID,
			Label:        d.Label,
			PublicKeyPEM: d.PublicKeyPEM,
			Fingerprint:  d.Fingerprint,
			RegisteredAt: d.RegisteredAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DevicesResponse{
		Identity: handle,
		Devices:  out,
	}))
}

// Presence reports which of an identity's devices are currently
// connected.
func (h *DeviceHandler) Presence(c *gin.Context) {
	handle := c.Param("handle")

	online, err := h.service.Presence(c.Request.Context(), handle)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]httpdto.PresenceDTO, len(online))
	for i, p := range online {
		out[i] = httpdto.PresenceDTO{
			DeviceID:    p.DeviceID,
			ConnectedAt: p.ConnectedAt.Format(time.RFC3339),
			LastSeen:    p.LastSeen.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.PresenceResponse{
		Identity: handle,
		Online:   out,
	}))
}
