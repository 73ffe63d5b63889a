package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ArildWaldan/suivi-sap/tracker"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "sap_notifications"
	QueueName    = "sap_notifications_queue"
)

// Message is the JSON body published for each notification.
type Message struct {
	Kind           string    `json:"kind"`
	OrderNumber    string    `json:"order_number"`
	DocumentNumber string    `json:"document_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage converts a notification into its wire form.
func NewMessage(n tracker.Notification) Message {
	return Message{
		Kind:           string(n.Kind),
		OrderNumber:    n.OrderNumber,
		DocumentNumber: n.DocumentNumber,
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

// RoutingKey is "sap.<kind>".
func (m Message) RoutingKey() string {
	return "sap." + m.Kind
}

// RabbitMq publishes notifications to a fanout exchange.
type RabbitMq struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to the broker at url and declares the exchange and queue.
func Dial(url string) (*RabbitMq, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	r, err := NewRabbitMq(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return r, nil
}

func NewRabbitMq(conn *amqp.Connection) (*RabbitMq, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = channel.ExchangeDeclare(
		ExchangeName,
		"fanout",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	q, err := channel.QueueDeclare(
		QueueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	err = channel.QueueBind(
		q.Name,
		"",
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	return &RabbitMq{
		conn:    conn,
		channel: channel,
	}, nil
}

// Notify publishes n as a persistent JSON message.
func (r *RabbitMq) Notify(ctx context.Context, n tracker.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := NewMessage(n)
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		msg.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    msg.CreatedAt,
			Body:         body,
		})
}

func (r *RabbitMq) Close() {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}
