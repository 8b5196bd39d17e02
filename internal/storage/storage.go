package storage

import (
	"context"

	"royaltyPool/internal/model"
)

// LogSink defines a sink for pool log records.
type LogSink interface {
	PutLogBatch(ctx context.Context, logs []model.LogRecord) error
}

// MultiSink writes every batch to each sink in order and stops at the first error.
type MultiSink []LogSink

func (m MultiSink) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutLogBatch(ctx, logs); err != nil {
			return err
		}
	}
	return nil
}
