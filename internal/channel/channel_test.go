package channel

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientQuery_Answered(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	responder := NewResponder(bus)
	defer responder.Close()
	responder.Handle(ActionGetWindowProperties, func() (any, error) {
		return map[string]string{"jQuery": "jQuery"}, nil
	})

	data, ok := client.Query(context.Background(), ActionGetWindowProperties, time.Second)
	if !ok {
		t.Fatal("Query() = not answered, want answer")
	}

	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal answer: %v", err)
	}
	if got["jQuery"] != "jQuery" {
		t.Errorf("answer = %v, want jQuery entry", got)
	}
}

func TestClientQuery_TimeoutIsNotAnError(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	// Nobody is listening on the other side.
	start := time.Now()
	data, ok := client.Query(context.Background(), ActionGetInterceptedRequests, 50*time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("Query() answered, want timeout")
	}
	if data != nil {
		t.Errorf("Query() data = %s, want nil", data)
	}
	if elapsed < 50*time.Millisecond {
		t.Errorf("Query() returned after %v, before the timeout", elapsed)
	}

	// The pending table must not leak timed-out entries.
	client.mu.Lock()
	pending := len(client.pending)
	client.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending entries after timeout = %d, want 0", pending)
	}
}

func TestClientQuery_ResolvesAtMostOnce(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	var answered atomic.Int32

	// A responder that answers every query twice.
	unsub := bus.Subscribe(func(env Envelope) {
		if env.ChannelID != ChannelID || env.Action == ActionQueryResult || env.RequestID == "" {
			return
		}
		answered.Add(1)
		for i := 0; i < 2; i++ {
			bus.Publish(Envelope{
				ChannelID: ChannelID,
				Action:    ActionQueryResult,
				RequestID: env.RequestID,
				Data:      json.RawMessage(`"dup"`),
			})
		}
	})
	defer unsub()

	data, ok := client.Query(context.Background(), ActionGetWindowProperties, time.Second)
	if !ok || string(data) != `"dup"` {
		t.Fatalf("Query() = (%s, %v), want first answer", data, ok)
	}

	// Give the duplicate time to arrive; it must be dropped silently.
	time.Sleep(50 * time.Millisecond)

	client.mu.Lock()
	pending := len(client.pending)
	client.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending entries after duplicate answer = %d, want 0", pending)
	}
	if got := answered.Load(); got != 1 {
		t.Errorf("responder invoked %d times, want 1", got)
	}
}

func TestClientQuery_ConcurrentCorrelation(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	// Echo the request id back as the answer payload so each caller can
	// verify it got its own answer and not a sibling's.
	unsub := bus.Subscribe(func(env Envelope) {
		if env.ChannelID != ChannelID || env.Action == ActionQueryResult || env.RequestID == "" {
			return
		}
		data, _ := json.Marshal(env.RequestID)
		bus.Publish(Envelope{
			ChannelID: ChannelID,
			Action:    ActionQueryResult,
			RequestID: env.RequestID,
			Data:      data,
		})
	})
	defer unsub()

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, ok := client.Query(context.Background(), ActionGetInterceptedRequests, time.Second)
			if !ok {
				t.Error("Query() timed out under concurrency")
				return
			}
			var echoed string
			if err := json.Unmarshal(data, &echoed); err != nil || echoed == "" {
				t.Errorf("answer payload = %s, want echoed request id", data)
			}
		}()
	}
	wg.Wait()
}

func TestChannelIDFiltering(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	responder := NewResponder(bus)
	defer responder.Close()

	var handled atomic.Int32
	responder.Handle(ActionGetWindowProperties, func() (any, error) {
		handled.Add(1)
		return nil, nil
	})

	// Foreign traffic on the same bus must be ignored by both sides.
	bus.Publish(Envelope{
		ChannelID: "some-other-tool",
		Action:    ActionGetWindowProperties,
		RequestID: "foreign-1",
	})
	bus.Publish(Envelope{
		ChannelID: "some-other-tool",
		Action:    ActionQueryResult,
		RequestID: "foreign-2",
	})

	time.Sleep(50 * time.Millisecond)

	if got := handled.Load(); got != 0 {
		t.Errorf("responder handled %d foreign envelopes, want 0", got)
	}
}

func TestResponderHandlerError_LeavesQueryToTimeOut(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	responder := NewResponder(bus)
	defer responder.Close()
	responder.Handle(ActionGetInterceptedRequests, func() (any, error) {
		return nil, context.DeadlineExceeded
	})

	data, ok := client.Query(context.Background(), ActionGetInterceptedRequests, 50*time.Millisecond)
	if ok || data != nil {
		t.Errorf("Query() = (%s, %v), want silent timeout when handler fails", data, ok)
	}
}

func TestClientQuery_ContextCancellation(t *testing.T) {
	bus := NewBus()
	client := NewClient(bus)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, ok := client.Query(ctx, ActionGetWindowProperties, 5*time.Second)
	if ok {
		t.Error("Query() answered, want cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("Query() did not honor context cancellation")
	}
}

func TestBusSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var count atomic.Int32
	unsub := bus.Subscribe(func(Envelope) {
		count.Add(1)
	})

	bus.Publish(Envelope{ChannelID: ChannelID})
	time.Sleep(20 * time.Millisecond)

	unsub()
	bus.Publish(Envelope{ChannelID: ChannelID})
	time.Sleep(20 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("handler invoked %d times, want 1", got)
	}
}
