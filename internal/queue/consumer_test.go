package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	rejects int
	requeue bool
}

func (f *fakeAcknowledger) Ack(uint64, bool) error {
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacks++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, requeue bool) error {
	f.rejects++
	f.requeue = requeue
	return nil
}

func TestRabbitMQConsumerHandleDelivery(t *testing.T) {
	t.Parallel()

	validBody := []byte(`{"name":"send-notification","jobId":"notification-1","notificationId":1,"attempt":1}`)

	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		wantCalled  bool
		wantAcks    int
		wantNacks   int
		wantRejects int
		wantRequeue bool
	}{
		{name: "ack on success", body: validBody, wantCalled: true, wantAcks: 1},
		{name: "requeue on handler error", body: validBody, handlerErr: errors.New("redis down"), wantCalled: true, wantNacks: 1, wantRequeue: true},
		{name: "dead-letter invalid json", body: []byte(`{`), wantRejects: 1},
		{name: "dead-letter invalid payload", body: []byte(`{"name":"other","jobId":"x","notificationId":1,"attempt":1}`), wantRejects: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ack := &fakeAcknowledger{}
			consumer := NewRabbitMQConsumer(nil, 1, zap.NewNop())
			called := false

			err := consumer.handleDelivery(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  1,
				Body:         tt.body,
			}, func(_ context.Context, msg DispatchMessage) error {
				called = true
				if msg.NotificationID != 1 {
					t.Fatalf("unexpected message: %+v", msg)
				}
				return tt.handlerErr
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}

			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if ack.acks != tt.wantAcks || ack.nacks != tt.wantNacks || ack.rejects != tt.wantRejects {
				t.Fatalf("acks=%d nacks=%d rejects=%d", ack.acks, ack.nacks, ack.rejects)
			}
			if ack.requeue != tt.wantRequeue {
				t.Fatalf("requeue = %v, want %v", ack.requeue, tt.wantRequeue)
			}
		})
	}
}

func TestRabbitMQConsumerConsumeValidatesArguments(t *testing.T) {
	t.Parallel()

	var nilConsumer *RabbitMQConsumer
	if err := nilConsumer.Consume(context.Background(), WorkQueueName, func(context.Context, DispatchMessage) error { return nil }); err == nil {
		t.Fatal("expected error for uninitialized consumer")
	}
}
