package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/core/middleware"
	"github.com/routemq/routemq/internal/mock"
)

// newTestContext creates a core.Context from a mock message for testing.
func newTestContext(msg *mock.Message) core.Context {
	return core.NewContext(
		context.Background(),
		msg,
		msg.TopicName,
		nil,
		mock.NewBroker(),
		core.JSONBinder{},
	)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer log.SetOutput(nil)

	handler := middleware.Logging()(func(c core.Context) error {
		return nil
	})

	c := newTestContext(&mock.Message{TopicName: "test.topic", Body: []byte("val")})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), "OK") {
		t.Errorf("expected OK log, got: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "test.topic") {
		t.Errorf("expected topic in log, got: %s", buf.String())
	}
}

func TestLogging_Error(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer log.SetOutput(nil)

	handler := middleware.Logging()(func(c core.Context) error {
		return errors.New("boom")
	})

	c := newTestContext(&mock.Message{TopicName: "test.topic", Body: []byte("v")})
	handler(c)

	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("expected ERROR log, got: %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	handler := middleware.Recovery()(func(c core.Context) error {
		panic("test panic")
	})

	c := newTestContext(&mock.Message{TopicName: "test.topic", Body: []byte("v")})
	err := handler(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if !strings.Contains(err.Error(), "panic recovered") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(nil)

	handler := middleware.Recovery()(func(c core.Context) error {
		return nil
	})

	c := newTestContext(&mock.Message{TopicName: "test.topic", Body: []byte("v")})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

type fakeCollector struct {
	mu     bytes.Buffer
	topics []string
	errs   []error
}

func (f *fakeCollector) MessageProcessed(topic string, _ time.Duration, err error) {
	f.topics = append(f.topics, topic)
	f.errs = append(f.errs, err)
}

func TestMetrics(t *testing.T) {
	collector := &fakeCollector{}
	handler := middleware.Metrics(collector)(func(c core.Context) error {
		return nil
	})

	c := newTestContext(&mock.Message{TopicName: "devices/1/control", Body: []byte("v")})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(collector.topics) != 1 || collector.topics[0] != "devices/1/control" {
		t.Fatalf("expected one observation for devices/1/control, got %v", collector.topics)
	}
	if collector.errs[0] != nil {
		t.Fatalf("expected nil error recorded, got %v", collector.errs[0])
	}
}

func TestMetrics_RecordsError(t *testing.T) {
	collector := &fakeCollector{}
	boom := errors.New("boom")
	handler := middleware.Metrics(collector)(func(c core.Context) error {
		return boom
	})

	c := newTestContext(&mock.Message{TopicName: "devices/1/control", Body: []byte("v")})
	if err := handler(c); err != boom {
		t.Fatalf("expected boom, got %v", err)
	}
	if collector.errs[0] != boom {
		t.Fatalf("expected recorded error boom, got %v", collector.errs[0])
	}
}
