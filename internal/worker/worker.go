// Package worker provides async assessment processing from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-health/kestrel/internal/assess"
	"github.com/opensource-health/kestrel/internal/domain"
)

// Worker consumes assessment requests from the EventBus and runs them
// through the batch engine.
type Worker struct {
	bus    domain.EventBus
	store  domain.Store
	engine *assess.Engine
	logger *slog.Logger

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, store domain.Store, engine *assess.Engine, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		store:  store,
		engine: engine,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the assessment request topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAssessRequest, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started", "topic", domain.TopicAssessRequest)
	return nil
}

// AssessRequest is the message payload for assessment requests.
// An empty ClaimIDs slice requests a full-store assessment.
type AssessRequest struct {
	RequestID string   `json:"requestId,omitempty"`
	ClaimIDs  []string `json:"claimIds,omitempty"`
}

// handleMessage runs one assessment request through the engine and
// persists the resulting assessments.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req AssessRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.logger.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = msg.ID
	}

	w.logger.Debug("processing assessment request",
		"request_id", requestID,
		"claim_count", len(req.ClaimIDs),
	)

	result, err := w.engine.Assess(ctx, req.ClaimIDs)
	if err != nil {
		w.logger.Error("assessment request failed",
			"request_id", requestID,
			"error", err,
		)
		return err
	}

	// Persist assessments. A storage failure is logged per assessment
	// and does not fail the request; events were already published.
	if w.store != nil {
		for _, a := range result.Assessments {
			if err := w.store.SaveAssessment(ctx, a); err != nil {
				w.logger.Error("failed to save assessment",
					"claim_id", a.ClaimID,
					"error", err,
				)
			}
		}
	}

	w.logger.Info("assessment request processed",
		"request_id", requestID,
		"batch_id", result.BatchID,
		"claims", len(result.Assessments),
		"failures", len(result.Failures),
		"fraud_detected", result.FraudDetected(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
