package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"clipstream/internal/model"
	"clipstream/internal/pkg/logger"
	"clipstream/internal/repository"
)

// AuthEventWorker drains the audit queue and persists auth events. Publishing
// stays off the request path; the worker is the only writer of auth_events.
type AuthEventWorker struct {
	conn      *amqp.Connection
	repo      *repository.AuthEventRepository
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewAuthEventWorker(conn *amqp.Connection, repo *repository.AuthEventRepository, queueName string) *AuthEventWorker {
	return &AuthEventWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
	}
}

func (w *AuthEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.AuthEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					logger.Error("worker decode auth event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := w.repo.Create(workerCtx, &event); err != nil {
					logger.Error("worker persist auth event failed", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *AuthEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
