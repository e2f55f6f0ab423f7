package repository

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// rabbitConn owns one connection and channel bound to a durable queue,
// and reconnects on request in the background
type rabbitConn struct {
	url       string
	queueName string
	name      string

	conn       *amqp091.Connection
	channel    *amqp091.Channel
	connMutex  sync.RWMutex
	maxRetries int
	retryDelay time.Duration

	reconnectCh   chan bool
	stopReconnect chan bool
	onReconnect   func()
}

func newRabbitConn(url, queueName, name string) *rabbitConn {
	return &rabbitConn{
		url:           url,
		queueName:     queueName,
		name:          name,
		maxRetries:    3,
		retryDelay:    1 * time.Second,
		reconnectCh:   make(chan bool, 1),
		stopReconnect: make(chan bool),
	}
}

// connect dials with retries and declares the queue (idempotent)
func (c *rabbitConn) connect() error {
	var conn *amqp091.Connection
	var err error
	for i := 0; i < c.maxRetries; i++ {
		conn, err = amqp091.Dial(c.url)
		if err == nil {
			break
		}
		log.Printf("Failed to connect %s to RabbitMQ (attempt %d/%d): %v", c.name, i+1, c.maxRetries, err)
		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay)
		}
	}
	if err != nil {
		return err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}

	_, err = channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", c.queueName, err)
	}

	c.connMutex.Lock()
	c.conn = conn
	c.channel = channel
	c.connMutex.Unlock()

	log.Printf("%s connected to RabbitMQ (queue: %s)", c.name, c.queueName)
	return nil
}

func (c *rabbitConn) handleReconnection() {
	for {
		select {
		case <-c.reconnectCh:
			log.Printf("%s attempting to reconnect to RabbitMQ...", c.name)
			c.connMutex.Lock()
			if c.channel != nil && !c.channel.IsClosed() {
				c.channel.Close()
			}
			if c.conn != nil && !c.conn.IsClosed() {
				c.conn.Close()
			}
			c.connMutex.Unlock()

			if err := c.connect(); err != nil {
				log.Printf("%s reconnection failed: %v", c.name, err)
				time.Sleep(5 * time.Second)
				c.requestReconnect()
				continue
			}
			if c.onReconnect != nil {
				c.onReconnect()
			}
		case <-c.stopReconnect:
			return
		}
	}
}

func (c *rabbitConn) requestReconnect() {
	select {
	case c.reconnectCh <- true:
	default:
	}
}

// current returns the live channel, or nil when disconnected
func (c *rabbitConn) current() *amqp091.Channel {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if c.channel == nil || c.channel.IsClosed() || c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.channel
}

func (c *rabbitConn) close() error {
	close(c.stopReconnect)
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			log.Printf("Error closing %s channel: %v", c.name, err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
