package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SettlementPayoutQueue = "settlement_payout_events"
	AssessmentRunQueue    = "assessment_run_events"
)

// PayoutSettledEvent is emitted once a damage report's settlement confirms
// on-ledger. Downstream services (notification, policy accounting) consume it.
type PayoutSettledEvent struct {
	PolicyID       string `json:"policy_id"`
	LedgerPolicyID uint64 `json:"ledger_policy_id"`
	CombinedIndex  int    `json:"combined_index"`
	PayoutAmount   string `json:"payout_amount"`
	TxHash         string `json:"tx_hash"`
	AssessedAt     int64  `json:"assessed_at"`
}

// RunCompletedEvent summarizes a finished assessment cycle for operators.
type RunCompletedEvent struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Assessed   int    `json:"assessed"`
	Submitted  int    `json:"submitted"`
	Rejected   int    `json:"rejected"`
	Errored    int    `json:"errored"`
	FinishedAt int64  `json:"finished_at"`
}

// SettlementPublisher publishes settlement events to RabbitMQ
type SettlementPublisher struct {
	conn              *RabbitMQConnection
	messagesPublished int64
	messagesFailed    int64
	lastPublishTime   time.Time
}

// NewSettlementPublisher creates a new settlement event publisher
func NewSettlementPublisher(conn *RabbitMQConnection) *SettlementPublisher {
	return &SettlementPublisher{
		conn:            conn,
		lastPublishTime: time.Now(),
	}
}

// PublishPayoutSettled publishes a payout event to the settlement_payout_events queue
func (p *SettlementPublisher) PublishPayoutSettled(ctx context.Context, event PayoutSettledEvent) error {
	if err := p.publish(ctx, SettlementPayoutQueue, event); err != nil {
		return err
	}
	slog.Info("Payout settled event published",
		"queue", SettlementPayoutQueue,
		"policy_id", event.PolicyID,
		"tx_hash", event.TxHash,
	)
	return nil
}

// PublishRunCompleted publishes a run summary to the assessment_run_events queue
func (p *SettlementPublisher) PublishRunCompleted(ctx context.Context, event RunCompletedEvent) error {
	if err := p.publish(ctx, AssessmentRunQueue, event); err != nil {
		return err
	}
	slog.Info("Run completed event published",
		"queue", AssessmentRunQueue,
		"run_id", event.RunID,
		"status", event.Status,
	)
	return nil
}

func (p *SettlementPublisher) publish(ctx context.Context, queue string, event any) error {
	// Ensure the queue exists
	_, err := p.conn.Channel.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to marshal settlement event: %w", err)
	}

	err = p.conn.Channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		p.messagesFailed++
		return fmt.Errorf("failed to publish settlement event: %w", err)
	}

	p.messagesPublished++
	p.lastPublishTime = time.Now()
	return nil
}
