// Package handler provides HTTP handlers for API endpoints.
package handler

import (
	"net/http"
	"time"

	"courier-relay/internal/services"
	"courier-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	service *services.AuthService
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register handles identity registration.
func (h *AuthHandler) Register(c *gin.Context) {
	var req httpdto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.Register(c.Request.Context(), services.RegisterInput{
		Handle:       req.Handle,
		Password:     req.Password,
		DisplayName:  req.DisplayName,
		DeviceID:     req.DeviceID,
		PublicKeyPEM: req.PublicKeyPEM,
		DeviceLabel:  req.DeviceLabel,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(fromAuth(res)))
}

// Login handles identity authentication and device enrollment.
func (h *AuthHandler) Login(c *gin.Context) {
	var req httpdto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "INVALID_REQUEST"))
		return
	}

	res, err := h.service.Login(c.Request.Context(), services.LoginInput{
		Handle:       req.Handle,
		Password:     req.Password,
		DeviceID:     req.DeviceID,
		PublicKeyPEM: req.PublicKeyPEM,
		DeviceLabel:  req.DeviceLabel,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(fromAuth(res)))
}

func fromAuth(res services.AuthResponse) httpdto.AuthResponse {
	return httpdto.AuthResponse{
		Token:     res.Token,
		ExpiresIn: res.ExpiresIn,
		Identity: httpdto.IdentityDTO{
			Handle:      res.Identity.Handle,
			DisplayName: res.Identity.DisplayName,
			CreatedAt:   res.Identity.CreatedAt.Format(time.RFC3339),
		},
		Device: fromDevice(res.Device),
	}
}

func fromDevice(d services.DeviceInfo) httpdto.DeviceDTO {
	return httpdto.DeviceDTO{
		DeviceID:     d.DeviceID,
		Label:        d.Label,
		Fingerprint:  d.Fingerprint,
		RegisteredAt: d.RegisteredAt.Format(time.RFC3339),
	}
}

func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	res := httpdto.NewErrorResponse(err.Error(), errorCode(status))
	res.RequestID = c.Writer.Header().Get("X-Request-Id")
	c.JSON(status, res)
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
