package usecase

import (
	"context"

	"DealWatch/internal/domain/models"
	drepo "DealWatch/internal/domain/repository"
	applogger "DealWatch/pkg/logger"
)

// EventCollector drains the websocket outcome feed into the shared outcome
// handler. Used only when the feed backend is "websocket"; the Kafka backend
// registers the handler on the consumer instead.
type EventCollector struct {
	stream  drepo.EventStream
	handler *OutcomeHandler
	metrics drepo.Metrics
	logger  *applogger.Logger
}

func NewEventCollector(stream drepo.EventStream, handler *OutcomeHandler, metrics drepo.Metrics, logger *applogger.Logger) *EventCollector {
	return &EventCollector{stream: stream, handler: handler, metrics: metrics, logger: logger}
}

// IsConnected returns true if the stream is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *EventCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *EventCollector) consume(ctx context.Context, evCh <-chan *models.OutcomeEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case ev := <-evCh:
			if ev == nil {
				continue
			}
			if err := c.handler.HandleEvent(ctx, ev); err != nil {
				c.metrics.RecordError("outcome_event")
				c.logger.Warn("outcome event failed",
					applogger.String("kind", ev.Kind),
					applogger.String("deal", ev.DealID),
					applogger.Error(err))
			}
		}
	}
}

func (c *EventCollector) Stop() error { return c.stream.Close() }
