package server

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courier-relay/config"
	"courier-relay/internal/domain/envelope"
	"courier-relay/internal/handler"
	"courier-relay/internal/metrics"
	"courier-relay/internal/queue"
	"courier-relay/internal/registry"
	"courier-relay/internal/repository"
	"courier-relay/internal/router"
	"courier-relay/internal/services"
	"courier-relay/internal/storage"
	"courier-relay/internal/transport/httpdto"
	"courier-relay/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	ts      *httptest.Server
	authSvc *services.AuthService
}

func newTestRelay(t *testing.T) *testRelay {
	t.Helper()

	cfg := &config.Config{
		App:  config.AppConfig{Port: "0", Mode: TestMode},
		Auth: config.AuthConfig{JWTSecret: "test-secret", JWTExpiryMin: 60},
	}
	log := logger.NewNop()

	identities := repository.NewMemoryIdentityRepository()
	directory := repository.NewMemoryDirectory()
	store := repository.NewMemoryConversationStore()
	reg := registry.New()
	q := queue.NewMemoryQueue(queue.DefaultCap)
	m := metrics.New()

	authSvc := services.NewAuthService(identities, directory, cfg)
	r := router.New(router.Deps{
		Directory: directory,
		Store:     store,
		Registry:  reg,
		Queue:     q,
		Verifier:  authSvc,
		Metrics:   m,
		Log:       log,
	})

	handlers := &Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Device:       handler.NewDeviceHandler(services.NewDirectoryService(directory, nil)),
		Conversation: handler.NewConversationHandler(services.NewConversationService(store)),
		Attachment:   handler.NewAttachmentHandler(services.NewAttachmentService(storage.NewMemory())),
		WS:           NewWebSocketHandler(r, nil, m, log),
	}

	s := New(cfg, log)
	s.SetupRoutes(handlers, authSvc, nil, m, nil)

	ts := httptest.NewServer(s.engine)
	t.Cleanup(ts.Close)

	return &testRelay{ts: ts, authSvc: authSvc}
}

type account struct {
	handle   string
	deviceID string
	token    string
	priv     *rsa.PrivateKey
	pubPEM   string
}

func (tr *testRelay) register(t *testing.T, handle, deviceID string) *account {
	t.Helper()

	priv, err := envelope.GenerateKeyPair()
	require.NoError(t, err)
	pubPEM, err := envelope.EncodePublicKey(&priv.PublicKey)
	require.NoError(t, err)

	res := tr.postJSON(t, "/v1/auth/register", "", map[string]any{
		"handle":         handle,
		"password":       "swordfish-42",
		"display_name":   strings.ToUpper(handle[:1]) + handle[1:],
		"device_id":      deviceID,
		"public_key_pem": pubPEM,
	})
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body httpdto.Response[httpdto.AuthResponse]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.True(t, body.Success)
	require.NotEmpty(t, body.Data.Token)
	require.Equal(t, handle, body.Data.Identity.Handle)
	require.Equal(t, deviceID, body.Data.Device.DeviceID)

	return &account{
		handle:   handle,
		deviceID: deviceID,
		token:    body.Data.Token,
		priv:     priv,
		pubPEM:   pubPEM,
	}
}

func (tr *testRelay) postJSON(t *testing.T, path, token string, payload any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, tr.ts.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := tr.ts.Client().Do(req)
	require.NoError(t, err)
	return res
}

func (tr *testRelay) get(t *testing.T, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, tr.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := tr.ts.Client().Do(req)
	require.NoError(t, err)
	return res
}

func (tr *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(tr.ts.URL, "http") + "/ws"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if res != nil {
		res.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (tr *testRelay) identify(t *testing.T, conn *websocket.Conn, acc *account) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":     "identify",
		"token":    acc.token,
		"deviceId": acc.deviceID,
	}))
	frame := readFrame(t, conn)
	require.Equal(t, "identified", frame["type"], "got frame: %v", frame)
	require.Equal(t, "ok", frame["status"])
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func decodeEnvelope(t *testing.T, frame map[string]any) envelope.Envelope {
	t.Helper()

	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	var env envelope.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func TestPingAndHealth(t *testing.T) {
	tr := newTestRelay(t)

	res := tr.get(t, "/ping", "")
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	res2 := tr.get(t, "/health", "")
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)
}

func TestRegisterLoginAndDeviceLookup(t *testing.T) {
	tr := newTestRelay(t)
	alice := tr.register(t, "alice", "phone")

	// A second registration under the same handle is refused.
	dup := tr.postJSON(t, "/v1/auth/register", "", map[string]any{
		"handle":         "alice",
		"password":       "swordfish-42",
		"display_name":   "Alice",
		"device_id":      "tablet",
		"public_key_pem": alice.pubPEM,
	})
	defer dup.Body.Close()
	require.Equal(t, http.StatusConflict, dup.StatusCode)

	// Logging in again from the same device needs no key.
	login := tr.postJSON(t, "/v1/auth/login", "", map[string]any{
		"handle":    "alice",
		"password":  "swordfish-42",
		"device_id": "phone",
	})
	defer login.Body.Close()
	require.Equal(t, http.StatusOK, login.StatusCode)

	// A wrong password is rejected.
	badLogin := tr.postJSON(t, "/v1/auth/login", "", map[string]any{
		"handle":    "alice",
		"password":  "not-the-password",
		"device_id": "phone",
	})
	defer badLogin.Body.Close()
	require.Equal(t, http.StatusUnauthorized, badLogin.StatusCode)

	// Device lookup requires authentication.
	anon := tr.get(t, "/v1/identities/alice/devices", "")
	defer anon.Body.Close()
	require.Equal(t, http.StatusUnauthorized, anon.StatusCode)

	devices := tr.get(t, "/v1/identities/alice/devices", alice.token)
	defer devices.Body.Close()
	require.Equal(t, http.StatusOK, devices.StatusCode)

	var body httpdto.Response[httpdto.DevicesResponse]
	require.NoError(t, json.NewDecoder(devices.Body).Decode(&body))
	require.True(t, body.Success)
	require.Len(t, body.Data.Devices, 1)
	require.Equal(t, "phone", body.Data.Devices[0].DeviceID)
	require.Equal(t, alice.pubPEM, body.Data.Devices[0].PublicKeyPEM)
	require.NotEmpty(t, body.Data.Devices[0].Fingerprint)

	missing := tr.get(t, "/v1/identities/nobody/devices", alice.token)
	defer missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestEndToEndMessageDelivery(t *testing.T) {
	tr := newTestRelay(t)
	alice := tr.register(t, "alice", "phone")
	bob := tr.register(t, "bob", "laptop")

	bobConn := tr.dial(t)
	tr.identify(t, bobConn, bob)

	aliceConn := tr.dial(t)
	tr.identify(t, aliceConn, alice)

	// Alice looks up Bob's device keys and seals an envelope only Bob
	// can open.
	bobPub, err := envelope.ParsePublicKey(bob.pubPEM)
	require.NoError(t, err)
	env, err := envelope.SealFor([]byte("hello bob"),
		envelope.Address{Identity: "alice", Device: "phone"},
		"bob",
		map[string]*rsa.PublicKey{"laptop": bobPub})
	require.NoError(t, err)

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":       "message",
		"toIdentity": "bob",
		"payload":    env,
	}))

	receipt := readFrame(t, aliceConn)
	require.Equal(t, "message-sent", receipt["type"])
	require.Equal(t, "bob", receipt["to"])
	require.Equal(t, float64(1), receipt["deliveredTo"])

	delivery := readFrame(t, bobConn)
	require.Equal(t, "message.payload", delivery["type"])
	got := decodeEnvelope(t, delivery)
	require.Equal(t, "alice", got.From.Identity)
	require.Equal(t, "laptop", got.To.Device)

	plain, err := envelope.Open(got, bob.priv)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(plain))
}

func TestOfflineDeliveryAndHistory(t *testing.T) {
	tr := newTestRelay(t)
	alice := tr.register(t, "alice", "phone")
	bob := tr.register(t, "bob", "laptop")

	aliceConn := tr.dial(t)
	tr.identify(t, aliceConn, alice)

	bobPub, err := envelope.ParsePublicKey(bob.pubPEM)
	require.NoError(t, err)
	env, err := envelope.SealFor([]byte("catch up later"),
		envelope.Address{Identity: "alice", Device: "phone"},
		"bob",
		map[string]*rsa.PublicKey{"laptop": bobPub})
	require.NoError(t, err)

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"type":       "message",
		"toIdentity": "bob",
		"payload":    env,
	}))

	receipt := readFrame(t, aliceConn)
	require.Equal(t, "message-sent", receipt["type"])
	require.Equal(t, float64(0), receipt["deliveredTo"])

	// Bob connects afterwards. The queued envelope is flushed before
	// the identified ack.
	bobConn := tr.dial(t)
	require.NoError(t, bobConn.WriteJSON(map[string]any{
		"type":     "identify",
		"token":    bob.token,
		"deviceId": bob.deviceID,
	}))

	first := readFrame(t, bobConn)
	require.Equal(t, "message.payload", first["type"])
	plain, err := envelope.Open(decodeEnvelope(t, first), bob.priv)
	require.NoError(t, err)
	require.Equal(t, "catch up later", string(plain))

	second := readFrame(t, bobConn)
	require.Equal(t, "identified", second["type"])

	// Both sides see the conversation over REST.
	convos := tr.get(t, "/v1/conversations", bob.token)
	defer convos.Body.Close()
	require.Equal(t, http.StatusOK, convos.StatusCode)

	var convoBody httpdto.Response[httpdto.ConversationsResponse]
	require.NoError(t, json.NewDecoder(convos.Body).Decode(&convoBody))
	require.Len(t, convoBody.Data.Conversations, 1)
	require.Equal(t, "alice", convoBody.Data.Conversations[0].Peer)
	require.Equal(t, "alice_bob", convoBody.Data.Conversations[0].ConversationID)

	history := tr.get(t, "/v1/conversations/alice/messages", bob.token)
	defer history.Body.Close()
	require.Equal(t, http.StatusOK, history.StatusCode)

	var histBody httpdto.Response[httpdto.HistoryResponse]
	require.NoError(t, json.NewDecoder(history.Body).Decode(&histBody))
	require.Equal(t, "alice_bob", histBody.Data.ConversationID)
	require.Len(t, histBody.Data.Records, 1)
	require.Equal(t, "alice", histBody.Data.Records[0].Sender)

	// Stored envelopes stay in multi-recipient form, so Bob's device
	// can still open its copy.
	stored, err := envelope.OpenAs(histBody.Data.Records[0].Envelope, "laptop", bob.priv)
	require.NoError(t, err)
	require.Equal(t, "catch up later", string(stored))
}

func TestAttachmentRoundTrip(t *testing.T) {
	tr := newTestRelay(t)
	alice := tr.register(t, "alice", "phone")

	blob := []byte("pretend this is ciphertext")
	req, err := http.NewRequest(http.MethodPost, tr.ts.URL+"/v1/attachments", bytes.NewReader(blob))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Authorization", "Bearer "+alice.token)
	res, err := tr.ts.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var body httpdto.Response[httpdto.AttachmentResponse]
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.True(t, body.Success)
	require.NotEmpty(t, body.Data.ID)
	require.Equal(t, len(blob), body.Data.Size)

	path := fmt.Sprintf("/v1/attachments/alice/%s", body.Data.ID)
	dl := tr.get(t, path, alice.token)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	require.Equal(t, "application/octet-stream", dl.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(dl.Body)
	require.NoError(t, err)
	require.Equal(t, blob, buf.Bytes())
}
