package server

import (
	"go.uber.org/zap"

	"courier-relay/pkg/logger"
)

// WebSocketLogger provides structured logging for connection events
type WebSocketLogger struct {
	logger *zap.Logger
}

// NewWebSocketLogger creates a connection-scoped logger
func NewWebSocketLogger(base *logger.Logger) *WebSocketLogger {
	return &WebSocketLogger{
		logger: base.Logger.With(zap.String("component", "websocket")),
	}
}

// Info logs info level event
func (l *WebSocketLogger) Info(event, identity, deviceID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("identity", identity),
		zap.String("device_id", deviceID),
	}, fields...)
	l.logger.Info("websocket_event", allFields...)
}

// Error logs error level event
func (l *WebSocketLogger) Error(event, identity, deviceID string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("identity", identity),
		zap.String("device_id", deviceID),
		zap.Error(err),
	}, fields...)
	l.logger.Error("websocket_error", allFields...)
}

// Warn logs warning level event
func (l *WebSocketLogger) Warn(event, identity, deviceID string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("event", event),
		zap.String("identity", identity),
		zap.String("device_id", deviceID),
	}, fields...)
	l.logger.Warn("websocket_warning", allFields...)
}
