package core

import "context"

// Logger logs messages and reports them to an error tracker.
// expected args fmt: error | map[string]interface{} | user.Profile
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}, partitionKey string) error
	Close() error
}
