package kfka

import (
	"context"
	"encoding/json"
	"github.com/segmentio/kafka-go"
	"log/slog"
	"time"
)

type ReaderConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewReader(cfg ReaderConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	})
}

// Consume reads messages until ctx is done. Undecodable messages and handler
// failures are logged and skipped.
func Consume[T any](ctx context.Context, r Reader, logger *slog.Logger, handle func(context.Context, T) error) {
	defer r.Close()
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("read kafka message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		var event T
		if err := json.Unmarshal(m.Value, &event); err != nil {
			logger.Warn("decode kafka message", "topic", m.Topic, "offset", m.Offset, "error", err)
			continue
		}
		if err := handle(ctx, event); err != nil {
			logger.Error("handle kafka message", "topic", m.Topic, "offset", m.Offset, "error", err)
		}
	}
}
