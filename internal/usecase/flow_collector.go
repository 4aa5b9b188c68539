package usecase

import (
	"context"
	"time"

	"PerpLens/internal/domain/models"
	drepo "PerpLens/internal/domain/repository"
	mid "PerpLens/internal/middleware"
)

// FlowCollector reads market events from the exchange stream and processes them.
type FlowCollector struct {
	stream  drepo.MarketStream
	proc    *FlowProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewFlowCollector creates a new FlowCollector instance.
func NewFlowCollector(stream drepo.MarketStream, proc *FlowProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *FlowCollector {
	return &FlowCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *FlowCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *FlowCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	evCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, evCh, errCh)
	return nil
}

// consume drains the stream channels. The stream's read loop closes both
// channels when it dies, so a closed event channel means the socket is gone:
// reconnect and resume on the fresh channels instead of spinning on the dead
// ones.
func (c *FlowCollector) consume(ctx context.Context, evCh <-chan *models.MarketEvent, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				// Closed error channel blocks forever as nil; the event
				// channel close drives the reconnect.
				errCh = nil
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
			}
		case e, ok := <-evCh:
			if !ok {
				// Both channels close together; drain pending errors so
				// none are lost before the channels are replaced.
				if errCh != nil {
					for err := range errCh {
						if err != nil {
							c.metrics.RecordError("stream")
						}
					}
				}
				evCh, errCh = c.resume(ctx)
				if evCh == nil {
					return
				}
				continue
			}
			if e == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, e)
			} else {
				_ = c.proc.Process(ctx, e)
			}
		}
	}
}

// resume reconnects the stream and returns fresh read channels, retrying
// until the context is cancelled. Returns nil channels on cancellation.
func (c *FlowCollector) resume(ctx context.Context) (<-chan *models.MarketEvent, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			select {
			case <-ctx.Done():
				return nil, nil
			case <-time.After(time.Second):
			}
			continue
		}
		return c.stream.Read(ctx)
	}
}

func (c *FlowCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying FlowProcessor for lifecycle management.
func (c *FlowCollector) Processor() *FlowProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *FlowCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
