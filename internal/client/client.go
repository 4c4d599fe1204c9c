// Package client is the programmatic interface to a courier relay.
// The courier CLI is built on it; everything it does goes through the
// same REST and websocket surface any other client would use.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"courier-relay/internal/transport/httpdto"
)

// APIError is a non-success response decoded from the relay's error
// envelope. RequestID, when the relay supplied one, names the server
// log line for this failure.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("relay: %s (%s, http %d, request %s)", e.Message, e.Code, e.Status, e.RequestID)
	}
	return fmt.Sprintf("relay: %s (%s, http %d)", e.Message, e.Code, e.Status)
}

// Client talks to one relay over REST. A client is safe for
// concurrent use; WithToken returns a derived client rather than
// mutating.
type Client struct {
	base  string
	http  *http.Client
	token string
}

func New(base string) *Client {
	return &Client{base: strings.TrimRight(base, "/"), http: http.DefaultClient}
}

// WithToken returns a copy of the client that authenticates with the
// given bearer token.
func (c *Client) WithToken(token string) *Client {
	derived := *c
	derived.token = token
	return &derived
}

type RegisterParams struct {
	Handle       string
	Password     string
	DisplayName  string
	DeviceID     string
	PublicKeyPEM string
	DeviceLabel  string
}

func (c *Client) Register(ctx context.Context, p RegisterParams) (httpdto.AuthResponse, error) {
	return postJSON[httpdto.AuthResponse](ctx, c, "/v1/auth/register", httpdto.RegisterRequest{
		Handle:       p.Handle,
		Password:     p.Password,
		DisplayName:  p.DisplayName,
		DeviceID:     p.DeviceID,
		PublicKeyPEM: p.PublicKeyPEM,
		DeviceLabel:  p.DeviceLabel,
	})
}

type LoginParams struct {
	Handle   string
	Password string
	DeviceID string
	// Optional: supplying a key registers the device or rotates its
	// key as part of the login.
	PublicKeyPEM string
	DeviceLabel  string
}

func (c *Client) Login(ctx context.Context, p LoginParams) (httpdto.AuthResponse, error) {
	return postJSON[httpdto.AuthResponse](ctx, c, "/v1/auth/login", httpdto.LoginRequest{
		Handle:       p.Handle,
		Password:     p.Password,
		DeviceID:     p.DeviceID,
		PublicKeyPEM: p.PublicKeyPEM,
		DeviceLabel:  p.DeviceLabel,
	})
}

// Devices fetches the device directory entry for an identity,
// public keys included.
func (c *Client) Devices(ctx context.Context, handle string) (httpdto.DevicesResponse, error) {
	return getJSON[httpdto.DevicesResponse](ctx, c, "/v1/identities/"+url.PathEscape(handle)+"/devices")
}

func (c *Client) Presence(ctx context.Context, handle string) (httpdto.PresenceResponse, error) {
	return getJSON[httpdto.PresenceResponse](ctx, c, "/v1/identities/"+url.PathEscape(handle)+"/presence")
}

func (c *Client) Conversations(ctx context.Context) (httpdto.ConversationsResponse, error) {
	return getJSON[httpdto.ConversationsResponse](ctx, c, "/v1/conversations")
}

func (c *Client) History(ctx context.Context, peer string) (httpdto.HistoryResponse, error) {
	return getJSON[httpdto.HistoryResponse](ctx, c, "/v1/conversations/"+url.PathEscape(peer)+"/messages")
}

// UploadAttachment stores an opaque blob and returns its capability
// id. Encrypt before calling; the relay stores exactly what it gets.
func (c *Client) UploadAttachment(ctx context.Context, contentType string, data []byte) (httpdto.AttachmentResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/attachments", bytes.NewReader(data))
	if err != nil {
		return httpdto.AttachmentResponse{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	return do[httpdto.AttachmentResponse](c, req)
}

// DownloadAttachment fetches a blob by owner and id, returning the
// bytes and the stored content type.
func (c *Client) DownloadAttachment(ctx context.Context, owner, id string) ([]byte, string, error) {
	path := fmt.Sprintf("/v1/attachments/%s/%s", url.PathEscape(owner), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, "", err
	}
	c.authorize(req)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return nil, "", decodeError(res)
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", err
	}
	return data, res.Header.Get("Content-Type"), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func postJSON[T any](ctx context.Context, c *Client, path string, in any) (T, error) {
	var zero T
	raw, err := json.Marshal(in)
	if err != nil {
		return zero, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
	if err != nil {
		return zero, err
	}
	req.Header.Set("Content-Type", "application/json")
	return do[T](c, req)
}

func getJSON[T any](ctx context.Context, c *Client, path string) (T, error) {
	var zero T
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return zero, err
	}
	return do[T](c, req)
}

func do[T any](c *Client, req *http.Request) (T, error) {
	var zero T
	c.authorize(req)

	res, err := c.http.Do(req)
	if err != nil {
		return zero, err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return zero, decodeError(res)
	}

	var body httpdto.Response[T]
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return zero, fmt.Errorf("decode response: %w", err)
	}
	if !body.Success {
		return zero, &APIError{Status: res.StatusCode, Code: body.Code, Message: body.Error, RequestID: body.RequestID}
	}
	return body.Data, nil
}

func decodeError(res *http.Response) error {
	var body httpdto.Response[any]
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body.Error == "" {
		return &APIError{Status: res.StatusCode, Code: "UNEXPECTED", Message: res.Status}
	}
	return &APIError{Status: res.StatusCode, Code: body.Code, Message: body.Error, RequestID: body.RequestID}
}
