package mqttsink

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"satrack/internal/domain/model"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(d time.Duration) bool { return d > 0 }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	messages     []published
	pubErr       error
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token { return &fakeToken{} }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.pubErr}
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func testPosition() model.Position {
	alt := 417.25
	p := model.NewPosition(45.5, -73.6, &alt, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	p.ID = 42
	return p
}

func TestPublishSendsJSON(t *testing.T) {
	fc := &fakeClient{}
	s := NewWithClient(fc, "satrack/position", 1)

	if err := s.Publish(context.Background(), testPosition()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msgs := fc.sent()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.topic != "satrack/position" || msg.qos != 1 || msg.retained {
		t.Errorf("unexpected publish args: topic=%q qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}

	var got model.Position
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if got.ID != 42 || got.Latitude != 45.5 || got.Longitude != -73.6 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.Timestamp.String() != "2025-03-10 12:00:00" {
		t.Errorf("unexpected timestamp: %s", got.Timestamp)
	}
}

func TestPublishPropagatesBrokerError(t *testing.T) {
	fc := &fakeClient{pubErr: errors.New("broker gone")}
	s := NewWithClient(fc, "satrack/position", 0)

	if err := s.Publish(context.Background(), testPosition()); err == nil {
		t.Fatal("expected an error from the broker")
	}
}

func TestPublishHonorsExpiredContext(t *testing.T) {
	fc := &fakeClient{}
	s := NewWithClient(fc, "satrack/position", 0)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	if err := s.Publish(ctx, testPosition()); err == nil {
		t.Fatal("expected a timeout with an expired context")
	}
}

func TestCloseDisconnects(t *testing.T) {
	fc := &fakeClient{}
	s := NewWithClient(fc, "satrack/position", 0)

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !fc.disconnected {
		t.Error("expected the client to be disconnected")
	}
}

func TestName(t *testing.T) {
	if got := NewWithClient(&fakeClient{}, "t", 0).Name(); got != "mqtt" {
		t.Errorf("expected sink name mqtt, got %q", got)
	}
}
