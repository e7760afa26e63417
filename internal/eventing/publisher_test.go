package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	ingestion "farmgate/internal/ingestion/domain"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func hangingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	published []published
	failFirst int
	hang      bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.failFirst > 0 {
		c.failFirst--
		return completedToken(errors.New("broker unavailable"))
	}
	if c.hang {
		return hangingToken()
	}
	return completedToken(nil)
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *fakeClient) Connect() mqtt.Token                    { return completedToken(nil) }
func (c *fakeClient) Disconnect(uint)                        {}
func (c *fakeClient) IsConnected() bool                      { return true }
func (c *fakeClient) IsConnectionOpen() bool                 { return true }
func (c *fakeClient) AddRoute(string, mqtt.MessageHandler)   {}
func (c *fakeClient) Unsubscribe(...string) mqtt.Token       { return completedToken(nil) }
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
func (c *fakeClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return completedToken(nil)
}
func (c *fakeClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return completedToken(nil)
}

func testConfig() BrokerConfig {
	return BrokerConfig{
		Host:           "localhost",
		Port:           1883,
		TopicPrefix:    "telemetry/resolved",
		QoS:            1,
		AckTimeout:     100 * time.Millisecond,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
	}
}

func testEvent(eventID string) ResolvedEvent {
	moisture := 42.0
	return NewResolvedEvent(ingestion.ResolvedReading{
		EventID:    eventID,
		DeviceID:   "dev-1",
		TalhaoID:   "T1",
		ResolvedBy: ingestion.ResolvedByGeo,
		Timestamp:  time.Date(2026, 3, 14, 10, 15, 0, 0, time.UTC),
		Values:     ingestion.SensorValues{SoilMoisturePct: &moisture},
	})
}

func TestPublishDeliversPerDeviceTopic(t *testing.T) {
	client := &fakeClient{}
	pub, err := NewPublisher(client, testConfig(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.Publish(context.Background(), testEvent("evt-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("expected one publish, got %d", client.count())
	}
	msg := client.published[0]
	if msg.topic != "telemetry/resolved/dev-1" {
		t.Fatalf("expected per-device topic, got %s", msg.topic)
	}
	if msg.qos != 1 {
		t.Fatalf("expected qos 1, got %d", msg.qos)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	for _, key := range []string{"eventId", "deviceId", "talhaoId", "timestamp", "resolvedBy", "summary"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("payload missing %s: %s", key, msg.payload)
		}
	}
	summary, ok := body["summary"].(map[string]any)
	if !ok {
		t.Fatalf("summary not an object: %s", msg.payload)
	}
	if value, present := summary["temperaturaSoloC"]; !present || value != nil {
		t.Fatalf("absent reading must serialize as explicit null, got %v", summary)
	}
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	client := &fakeClient{failFirst: 2}
	pub, err := NewPublisher(client, testConfig(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.Publish(context.Background(), testEvent("evt-2")); err != nil {
		t.Fatalf("publish should succeed after retries: %v", err)
	}
	if client.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", client.count())
	}
}

func TestPublishExhaustsRetries(t *testing.T) {
	client := &fakeClient{failFirst: 100}
	cfg := testConfig()
	cfg.MaxRetries = 2
	pub, err := NewPublisher(client, cfg, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	err = pub.Publish(context.Background(), testEvent("evt-3"))
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	if client.count() != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", client.count())
	}
}

func TestPublishAckTimeout(t *testing.T) {
	client := &fakeClient{hang: true}
	cfg := testConfig()
	cfg.AckTimeout = 10 * time.Millisecond
	cfg.MaxRetries = 0
	pub, err := NewPublisher(client, cfg, nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	err = pub.Publish(context.Background(), testEvent("evt-4"))
	if err == nil {
		t.Fatal("expected ack timeout")
	}
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
}

func TestPublishSessionDedup(t *testing.T) {
	client := &fakeClient{}
	pub, err := NewPublisher(client, testConfig(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	event := testEvent("evt-5")
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("repeat publish: %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("acked event must not be re-sent, got %d publishes", client.count())
	}
}

func TestPublishCancelledContext(t *testing.T) {
	client := &fakeClient{hang: true}
	pub, err := NewPublisher(client, testConfig(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err = pub.Publish(ctx, testEvent("evt-6"))
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if client.count() != 1 {
		t.Fatalf("cancelled publish must not keep retrying, got %d attempts", client.count())
	}
}

func TestPublishIncompleteEventRejected(t *testing.T) {
	pub, err := NewPublisher(&fakeClient{}, testConfig(), nil)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	event := testEvent("evt-7")
	event.TalhaoID = ""
	if err := pub.Publish(context.Background(), event); err == nil || !strings.Contains(err.Error(), "incomplete") {
		t.Fatalf("expected incomplete event rejection, got %v", err)
	}
}
