package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// RabbitMQPublisher publishes breach events for critical facts.
// Includes retry logic and circuit breaker for resilience.
type RabbitMQPublisher struct {
	rc         *rabbitConn
	cb         *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
}

// BreachEvent is the message body published for every critical fact
type BreachEvent struct {
	FactID     uuid.UUID            `json:"fact_id"`
	PatientID  uuid.UUID            `json:"patient_id"`
	MenuDayID  uuid.UUID            `json:"menu_day_id"`
	BreachType domain.BreachType    `json:"breach_type"`
	Severity   domain.Severity      `json:"severity"`
	Context    domain.TotalsContext `json:"context"`
	Actual     float64              `json:"actual"`
	Limit      float64              `json:"limit"`
	Delta      float64              `json:"delta"`
	DetectedAt time.Time            `json:"detected_at"`
	Timestamp  time.Time            `json:"timestamp"`
}

// NewBreachEvent builds the event published for a fact
func NewBreachEvent(fact *domain.CriticalFact) BreachEvent {
	return BreachEvent{
		FactID:     fact.ID,
		PatientID:  fact.PatientID,
		MenuDayID:  fact.MenuDayID,
		BreachType: fact.BreachType,
		Severity:   fact.Severity,
		Context:    fact.Context,
		Actual:     fact.Actual,
		Limit:      fact.Limit,
		Delta:      fact.Delta,
		DetectedAt: fact.CreatedAt,
		Timestamp:  time.Now(),
	}
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher with circuit breaker
func NewRabbitMQPublisher(rabbitMQURL string, queueName string) (*RabbitMQPublisher, error) {
	if queueName == "" {
		queueName = "menu_breaches"
	}

	publisher := &RabbitMQPublisher{
		rc:         newRabbitConn(rabbitMQURL, queueName, "Breach publisher"),
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "rabbitmq",
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}

	if err := publisher.rc.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	go publisher.rc.handleReconnection()

	return publisher, nil
}

// PublishBreach publishes one breach event
func (p *RabbitMQPublisher) PublishBreach(ctx context.Context, fact *domain.CriticalFact) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.publishWithRetry(ctx, fact)
	})
	return err
}

func (p *RabbitMQPublisher) publishWithRetry(ctx context.Context, fact *domain.CriticalFact) error {
	event := NewBreachEvent(fact)

	logEntry := map[string]interface{}{
		"event":       "breach_publish_attempt",
		"fact_id":     fact.ID.String(),
		"patient_id":  fact.PatientID.String(),
		"breach_type": string(fact.BreachType),
		"severity":    string(fact.Severity),
		"timestamp":   time.Now().Format(time.RFC3339),
	}
	jsonBytes, _ := json.Marshal(logEntry)
	log.Printf("%s", string(jsonBytes))

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal breach event: %w", err)
	}

	var lastErr error
	for i := 0; i < p.maxRetries; i++ {
		ch := p.rc.current()
		if ch == nil {
			p.rc.requestReconnect()
			lastErr = fmt.Errorf("RabbitMQ connection is closed")
			time.Sleep(p.retryDelay)
			continue
		}

		err = ch.PublishWithContext(
			ctx,
			"",             // exchange
			p.rc.queueName, // routing key
			false,          // mandatory
			false,          // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp091.Persistent,
				MessageId:    fact.ID.String(),
				Timestamp:    time.Now(),
			},
		)
		if err == nil {
			return nil
		}

		lastErr = err
		log.Printf("Failed to publish breach event (attempt %d/%d): %v", i+1, p.maxRetries, err)
		if i < p.maxRetries-1 {
			p.rc.requestReconnect()
			time.Sleep(p.retryDelay)
		}
	}

	return fmt.Errorf("failed to publish breach event after %d retries: %w", p.maxRetries, lastErr)
}

// Close closes the RabbitMQ connection
func (p *RabbitMQPublisher) Close() error {
	return p.rc.close()
}

// Ensure RabbitMQPublisher implements the interface
var _ ports.BreachPublisher = (*RabbitMQPublisher)(nil)
