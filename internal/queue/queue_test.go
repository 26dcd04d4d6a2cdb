package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := q.Publish(ctx, Message{Type: "payment.confirmed", Body: json.RawMessage(`{"id":"r1"}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-ch:
		if msg.Type != "payment.confirmed" || string(msg.Body) != `{"id":"r1"}` {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestEnvelope(t *testing.T) {
	if _, err := encode(Message{Body: json.RawMessage(`{}`)}); err == nil {
		t.Fatal("expected error for untyped message")
	}
	raw, err := encode(Message{Type: "paper.decision", Body: json.RawMessage(`{"status":"accepted"}`)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := decode(raw)
	if err != nil || msg.Type != "paper.decision" {
		t.Fatalf("decode: %+v %v", msg, err)
	}
	if _, err := decode([]byte("payment|{}")); err == nil {
		t.Fatal("legacy pipe format should not decode")
	}
}
