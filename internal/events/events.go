// Package events publishes directory change notifications through watermill.
//
// Each event name is its own topic. Payloads are JSON encoded and messages carry a random uuid
// plus the event name in the "name" metadata key.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/dird/internal/shared"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// MetadataName is the metadata key holding the event name.
const MetadataName = "name"

var ErrClosed = errors.New("publisher is closed")

// Publisher encodes payloads and hands them to a watermill publisher.
type Publisher struct {
	pub    message.Publisher
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher wraps pub.
func NewPublisher(pub message.Publisher, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{pub: pub, logger: shared.WithLogger(logger, "component", "events")}
}

// NewGoChannel creates an in-process pub/sub and a Publisher on top of it.
// Subscribe on the returned channel to consume the events.
func NewGoChannel(cfg shared.EventsConfig, logger *log.Logger) (*Publisher, *gochannel.GoChannel) {
	if logger == nil {
		logger = log.Default()
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.BufferSize,
		BlockPublishUntilSubscriberAck: cfg.WaitForAck,
	}, NewLoggerAdapter(logger))
	return NewPublisher(ch, logger), ch
}

// Publish sends payload as event name.
func (p *Publisher) Publish(ctx context.Context, name string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", name, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataName, name)
	msg.SetContext(ctx)

	if err := p.pub.Publish(name, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", name, err)
	}
	p.logger.Debug("event published", "event", name, "id", msg.UUID)
	return nil
}

// Close closes the underlying publisher. Later publishes fail with [ErrClosed].
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.pub.Close()
}

// Decode unmarshals the payload of msg.
func Decode[T any](msg *message.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s payload: %w", msg.Metadata.Get(MetadataName), err)
	}
	return v, nil
}

// Handler processes one received event. A returned error nacks the message.
type Handler func(ctx context.Context, msg *message.Message) error

// Listener handles the messages of a set of subscriptions in the background.
type Listener struct {
	ctx context.Context
	wg  sync.WaitGroup
}

// Listen subscribes to every topic in names before returning, then calls handle for each message
// until ctx is done or the subscriber is closed.
func Listen(ctx context.Context, sub message.Subscriber, handle Handler, names ...string) (*Listener, error) {
	l := &Listener{ctx: ctx}
	for _, name := range names {
		messages, err := sub.Subscribe(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			for msg := range messages {
				if err := handle(ctx, msg); err != nil {
					msg.Nack()
					continue
				}
				msg.Ack()
			}
		}()
	}
	return l, nil
}

// Wait blocks until every subscription has ended and returns the context error, if any.
func (l *Listener) Wait() error {
	l.wg.Wait()
	return l.ctx.Err()
}


// LogHandler logs every event at info level.
func LogHandler(logger *log.Logger) Handler {
	return func(_ context.Context, msg *message.Message) error {
		logger.Info("event", "event", msg.Metadata.Get(MetadataName), "id", msg.UUID, "payload", string(msg.Payload))
		return nil
	}
}

// loggerAdapter forwards watermill logs to a charmbracelet logger.
type loggerAdapter struct {
	logger *log.Logger
}

// NewLoggerAdapter adapts logger to [watermill.LoggerAdapter].
func NewLoggerAdapter(logger *log.Logger) watermill.LoggerAdapter {
	return loggerAdapter{logger: logger}
}

func (a loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(keyvals(fields), "error", err)...)
}

func (a loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, keyvals(fields)...)
}

func (a loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, keyvals(fields)...)
}

func (a loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, keyvals(fields)...)
}

func (a loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return loggerAdapter{logger: a.logger.With(keyvals(fields)...)}
}

func keyvals(fields watermill.LogFields) []any {
	kv := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
