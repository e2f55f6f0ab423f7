package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/IANDYI/pku-menu-service/internal/adapters/metrics"
	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// GenerationRequest is the message body consumed from the generation queue
type GenerationRequest struct {
	PatientID string                   `json:"patient_id"`
	Mode      domain.GenerationMode    `json:"mode"`
	Date      string                   `json:"date,omitempty"`       // daily runs, YYYY-MM-DD
	StartDate string                   `json:"start_date,omitempty"` // weekly runs, YYYY-MM-DD
	Options   domain.GenerationOptions `json:"options"`
}

type deliveryAction int

// DefaultRequeueDelay holds back a retryable request before it is requeued
const DefaultRequeueDelay = 5 * time.Second

const (
	actionAck deliveryAction = iota
	actionReject
	actionRequeue
)

// GenerationConsumer runs menu generation for requests queued by other services
type GenerationConsumer struct {
	rc           *rabbitConn
	generator    ports.MenuGenerator
	requeueDelay time.Duration

	consumingMutex sync.Mutex
	isConsuming    bool
	consumingCtx   context.Context
}

// NewGenerationConsumer creates a consumer bound to the generation request queue
func NewGenerationConsumer(rabbitMQURL string, queueName string, generator ports.MenuGenerator) (*GenerationConsumer, error) {
	if queueName == "" {
		queueName = "menu.generation.requests"
	}

	consumer := &GenerationConsumer{
		rc:           newRabbitConn(rabbitMQURL, queueName, "Generation consumer"),
		generator:    generator,
		requeueDelay: DefaultRequeueDelay,
	}
	consumer.rc.onReconnect = consumer.restartConsuming

	if err := consumer.rc.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	go consumer.rc.handleReconnection()

	return consumer, nil
}

// WithRequeueDelay sets how long a retryable request is held before requeueing
func (c *GenerationConsumer) WithRequeueDelay(d time.Duration) *GenerationConsumer {
	if d >= 0 {
		c.requeueDelay = d
	}
	return c
}

func (c *GenerationConsumer) restartConsuming() {
	c.consumingMutex.Lock()
	ctx := c.consumingCtx
	c.isConsuming = false
	c.consumingMutex.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}
	if err := c.StartConsuming(ctx); err != nil {
		log.Printf("Failed to restart generation consumer: %v", err)
	}
}

// StartConsuming starts processing requests one at a time until ctx is cancelled
func (c *GenerationConsumer) StartConsuming(ctx context.Context) error {
	c.consumingMutex.Lock()
	if c.isConsuming {
		c.consumingMutex.Unlock()
		log.Println("Generation consumer is already running, skipping duplicate start")
		return nil
	}
	c.isConsuming = true
	c.consumingCtx = ctx
	c.consumingMutex.Unlock()

	stop := func(err error) error {
		c.consumingMutex.Lock()
		c.isConsuming = false
		c.consumingMutex.Unlock()
		return err
	}

	channel := c.rc.current()
	if channel == nil {
		return stop(fmt.Errorf("RabbitMQ connection is closed"))
	}

	if err := channel.Qos(1, 0, false); err != nil {
		return stop(fmt.Errorf("failed to set QoS: %w", err))
	}

	consumerTag := fmt.Sprintf("menu-generation-%d", time.Now().UnixNano())
	msgs, err := channel.Consume(
		c.rc.queueName, // queue
		consumerTag,    // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,            // args
	)
	if err != nil {
		return stop(fmt.Errorf("failed to register consumer: %w", err))
	}

	log.Printf("Generation consumer started (tag: %s), waiting for messages on queue: %s", consumerTag, c.rc.queueName)

	go func() {
		defer stop(nil)

		for {
			select {
			case <-ctx.Done():
				log.Println("Generation consumer context cancelled")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Println("Generation consumer channel closed, attempting reconnection...")
					c.rc.requestReconnect()
					return
				}
				c.processMessage(ctx, msg)
			}
		}
	}()

	return nil
}

// processMessage acks handled requests, rejects malformed ones and requeues
// requests that hit a held lock or an infrastructure failure
func (c *GenerationConsumer) processMessage(ctx context.Context, msg amqp091.Delivery) {
	start := time.Now()
	action := c.handleRequest(ctx, msg.Body)

	var status string
	var err error
	switch action {
	case actionAck:
		status = "processed"
		err = msg.Ack(false)
	case actionReject:
		status = "rejected"
		err = msg.Nack(false, false)
	default:
		status = "requeued"
		// with QoS 1 the request would come straight back while the lock is held
		c.waitBeforeRequeue(ctx)
		err = msg.Nack(false, true)
	}
	if err != nil {
		log.Printf("Failed to settle generation request (%s): %v", status, err)
	}

	metrics.GenerationRequestsConsumedTotal.WithLabelValues(status).Inc()
	metrics.RabbitMQConsumeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (c *GenerationConsumer) waitBeforeRequeue(ctx context.Context) {
	if c.requeueDelay <= 0 {
		return
	}
	timer := time.NewTimer(c.requeueDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (c *GenerationConsumer) handleRequest(ctx context.Context, body []byte) deliveryAction {
	var req GenerationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("Failed to unmarshal generation request: %v", err)
		return actionReject
	}

	patientID, date, err := req.parse()
	if err != nil {
		log.Printf("Invalid generation request: %v", err)
		return actionReject
	}

	var result *domain.GenerationResult
	if req.Mode == domain.ModeWeekly {
		result, err = c.generator.GenerateWeeklyMenu(ctx, patientID, date, req.Options)
	} else {
		result, err = c.generator.GenerateDailyMenu(ctx, patientID, date, req.Options)
	}
	if err != nil {
		if errors.Is(err, domain.ErrGenerationLocked) {
			log.Printf("Generation already running for patient %s, requeueing request", patientID)
		} else {
			log.Printf("Failed to generate menu from RabbitMQ request: %v", err)
		}
		return actionRequeue
	}

	logEntry := map[string]interface{}{
		"event":      "generation_request_processed",
		"patient_id": patientID.String(),
		"mode":       string(req.Mode),
		"success":    result.Success,
		"message":    result.Message,
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	jsonBytes, _ := json.Marshal(logEntry)
	log.Printf("%s", string(jsonBytes))

	// a failed result is a business outcome; redelivery would fail the same way
	return actionAck
}

func (r GenerationRequest) parse() (uuid.UUID, time.Time, error) {
	if r.PatientID == "" {
		return uuid.Nil, time.Time{}, errors.New("patient_id is required")
	}
	patientID, err := uuid.Parse(r.PatientID)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("patient_id is not a valid UUID: %w", err)
	}

	var raw string
	switch r.Mode {
	case domain.ModeDaily:
		raw = r.Date
	case domain.ModeWeekly:
		raw = r.StartDate
	default:
		return uuid.Nil, time.Time{}, fmt.Errorf("unknown mode %q", r.Mode)
	}
	if raw == "" {
		return uuid.Nil, time.Time{}, fmt.Errorf("date is required for %s generation", r.Mode)
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return patientID, date, nil
}

// Close stops reconnection and closes the RabbitMQ connection
func (c *GenerationConsumer) Close() error {
	c.consumingMutex.Lock()
	c.isConsuming = false
	c.consumingMutex.Unlock()

	err := c.rc.close()
	log.Println("Generation consumer closed")
	return err
}
