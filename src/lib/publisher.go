package lib

import (
	"context"
	"errors"
	"fmt"
	"raffles/src/types"
	"strconv"
	"strings"

	"firebase.google.com/go/v4/messaging"
)

type EventPublisher interface {
	Publish(ctx context.Context, e types.DomainEvent) error
}

// MultiPublisher fans an event out to every publisher and joins their errors.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, e types.DomainEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher pushes events to a Firebase Cloud Messaging topic.
type FCMPublisher struct {
	client messageSender
	topic  string
}

func NewFCMPublisher(client messageSender, topic string) *FCMPublisher {
	return &FCMPublisher{client: client, topic: topic}
}

func (p *FCMPublisher) Publish(ctx context.Context, e types.DomainEvent) error {
	msg := &messaging.Message{
		Topic: p.topic,
		Data:  eventData(e),
	}
	if e.Type == types.EVENT_RAFFLE_DRAWN && len(e.Numbers) > 0 {
		msg.Notification = &messaging.Notification{
			Title: "Sorteio realizado",
			Body:  fmt.Sprintf("Número sorteado: %d", e.Numbers[0]),
		}
	}
	if _, err := p.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm %s: %w", e.Type, err)
	}
	return nil
}

// eventData flattens an event into FCM's string-only data payload.
func eventData(e types.DomainEvent) map[string]string {
	data := map[string]string{
		"type":      string(e.Type),
		"raffle_id": e.RaffleID,
	}
	if e.OrderID != "" {
		data["order_id"] = e.OrderID
	}
	if e.UserID != "" {
		data["user_id"] = e.UserID
	}
	if len(e.Numbers) > 0 {
		numbers := make([]string, len(e.Numbers))
		for i, n := range e.Numbers {
			numbers[i] = strconv.Itoa(n)
		}
		data["numbers"] = strings.Join(numbers, ",")
	}
	return data
}
