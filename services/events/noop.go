package eventsvc

import (
	"context"
	"fmt"

	"github.com/trezcool/masomo-portals/core"
)

// LogPublisher only logs events; it is used when no broker is configured.
type LogPublisher struct {
	logger core.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, eventType string, payload interface{}, partitionKey string) error {
	p.logger.Debug(fmt.Sprintf("event %s [%s]: %+v", eventType, partitionKey, payload))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
