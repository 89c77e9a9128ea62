package publishers

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubPublisher struct {
	id     string
	typ    string
	err    error
	events []Event
	closed bool
}

func (s *stubPublisher) ID() string   { return s.id }
func (s *stubPublisher) Type() string { return s.typ }
func (s *stubPublisher) Publish(_ context.Context, evt Event) error {
	s.events = append(s.events, evt)
	return s.err
}
func (s *stubPublisher) Close() error {
	s.closed = true
	return nil
}

func TestFanoutDeliversToEverySink(t *testing.T) {
	ok := &stubPublisher{id: "webhook", typ: TypeHTTP}
	bad := &stubPublisher{id: "queue", typ: TypeSQS, err: errors.New("throttled")}
	fanout := NewFanout([]Publisher{ok, nil, bad})
	if fanout.Size() != 2 {
		t.Fatalf("nil publishers should be dropped, size=%d", fanout.Size())
	}

	count, err := fanout.Publish(context.Background(), NewEvent("report--1", "APT report", ""))
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil || !strings.Contains(err.Error(), "sqs publisher[queue]") {
		t.Fatalf("expected error naming the failing sink, got %v", err)
	}
	if len(ok.events) != 1 || len(bad.events) != 1 {
		t.Fatalf("a failing sink must not stop delivery to the others")
	}
}

func TestFanoutCloseAndNilSafety(t *testing.T) {
	p := &stubPublisher{id: "gcp", typ: TypePubSub}
	NewFanout([]Publisher{p}).Close()
	if !p.closed {
		t.Fatalf("Close should reach publishers holding connections")
	}

	var empty *Fanout
	if n, err := empty.Publish(context.Background(), Event{}); n != 0 || err != nil {
		t.Fatalf("nil fanout should be a no-op")
	}
	empty.Close()
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	pubs, err := BuildAll(context.Background(), DefaultRegistry(), []PublisherConfig{
		{ID: "hook", Type: TypeHTTP, HTTP: &HTTPPublisherConfig{URL: "https://hooks.example.com", Method: "POST", TimeoutSeconds: 1}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(pubs) != 1 || pubs[0].ID() != "hook" || pubs[0].Type() != TypeHTTP {
		t.Fatalf("unexpected publishers %v", pubs)
	}

	if _, err := BuildAll(context.Background(), DefaultRegistry(), []PublisherConfig{{ID: "x", Type: "kafka"}}, nil); err == nil {
		t.Fatalf("expected error for unknown publisher type")
	}
}
