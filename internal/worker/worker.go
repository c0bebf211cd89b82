// Package worker drains the outbound operation queue into the remote
// store. It deliberately carries no retry machinery: a failed or
// malformed operation is logged and committed so it cannot block the
// partition.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"qistsync/internal/cache"
	"qistsync/internal/models"
	"qistsync/internal/remote"
	"qistsync/pkg/logger"
)

// Config wires the drain to its collaborators.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	Remote  *remote.Gateway
	Cache   cache.Cache
}

// Run consumes the ops topic until ctx is cancelled: applies each
// operation to the remote store and invalidates the owner's freshness
// cache. One consumer per process; scale with more replicas.
func Run(ctx context.Context, cfg Config) {
	if len(cfg.Brokers) == 0 {
		logger.Info(ctx, "Queue drain disabled (no Kafka brokers)")
		return
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	var processed int64
	logger.Info(ctx, "Queue drain started", "topic", cfg.Topic, "group", cfg.GroupID)
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "Drain fetch failed", "error", err)
			continue
		}
		if err := Apply(ctx, cfg.Remote, cfg.Cache, msg.Value); err != nil {
			logger.Error(ctx, "Drain apply failed", "error", err, "payload", string(msg.Value))
			// Commit anyway to avoid poison pill blocking the partition
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Error(ctx, "Drain commit failed", "error", err)
		}
		atomic.AddInt64(&processed, 1)
	}
}

// Apply decodes one queued operation and applies it to the remote store.
func Apply(ctx context.Context, gw *remote.Gateway, c cache.Cache, payload []byte) error {
	var op models.Operation
	if err := json.Unmarshal(payload, &op); err != nil {
		return err
	}
	switch op.Type {
	case models.OpCreate, models.OpUpdate:
		var inst models.Installment
		if err := json.Unmarshal(op.Data, &inst); err != nil {
			return err
		}
		if err := gw.UpsertInstallment(ctx, inst); err != nil {
			return err
		}
	case models.OpDelete:
		var del models.DeletePayload
		if err := json.Unmarshal(op.Data, &del); err != nil {
			return err
		}
		if err := gw.DeleteInstallment(ctx, del.ID, op.UserID); err != nil {
			return err
		}
	case models.OpTogglePayment:
		var toggle models.TogglePayload
		if err := json.Unmarshal(op.Data, &toggle); err != nil {
			return err
		}
		if err := gw.SetPaymentPaid(ctx, toggle.InstallmentID, toggle.PaymentID, toggle.IsPaid, toggle.PaidDate); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown operation type %q", op.Type)
	}
	if c != nil {
		c.Invalidate(ctx, op.UserID)
	}
	return nil
}
