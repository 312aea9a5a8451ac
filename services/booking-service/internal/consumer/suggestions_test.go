package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/holds"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

type fakeSuggester struct {
	got []holds.SuggestRequest
	err error
}

func (f *fakeSuggester) SuggestSlot(_ context.Context, req holds.SuggestRequest) (model.Hold, error) {
	f.got = append(f.got, req)
	return model.Hold{}, f.err
}

type fakeInbox struct {
	seen map[string]bool
}

func (f *fakeInbox) Record(_ context.Context, eventID, _ string) (bool, error) {
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

func (f *fakeInbox) Forget(_ context.Context, eventID string) error {
	delete(f.seen, eventID)
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func suggestion(id string) kafka.Message {
	return kafka.Message{
		Topic: TopicSlotSuggested,
		Key:   []byte(id),
		Value: []byte(`{"conversation_key":"+5511","business_id":"b1","service_id":"cut","scheduled_at":"2026-03-02T13:00:00Z"}`),
	}
}

func TestSlotSuggestedHandler(t *testing.T) {
	s := &fakeSuggester{}
	h := SlotSuggestedHandler(s, discard)
	if err := h(context.Background(), suggestion("e1")); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if len(s.got) != 1 || s.got[0].ConversationKey != "+5511" || !s.got[0].StartTime.Equal(time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected request: %+v", s.got)
	}
}

func TestSlotSuggestedHandler_ErrorHandling(t *testing.T) {
	s := &fakeSuggester{err: apperror.SlotTaken(time.Now(), time.Now())}
	h := SlotSuggestedHandler(s, discard)
	if err := h(context.Background(), suggestion("e1")); err != nil {
		t.Fatalf("domain rejection must be dropped, got %v", err)
	}
	if err := h(context.Background(), kafka.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("malformed message must be dropped, got %v", err)
	}

	s.err = errors.New("redis down")
	if err := h(context.Background(), suggestion("e2")); err == nil {
		t.Fatal("expected infrastructure error to surface")
	}
}

func TestConsumerProcess_DeduplicatesByEventID(t *testing.T) {
	s := &fakeSuggester{}
	c := &Consumer{logger: discard, inbox: &fakeInbox{seen: map[string]bool{}}, handler: SlotSuggestedHandler(s, discard)}

	for _, id := range []string{"e1", "e1", "e2"} {
		if err := c.process(context.Background(), suggestion(id)); err != nil {
			t.Fatalf("process %s: %v", id, err)
		}
	}
	if len(s.got) != 2 {
		t.Fatalf("expected two handled events, got %d", len(s.got))
	}
}

func TestConsumerProcess_FailureReleasesInbox(t *testing.T) {
	s := &fakeSuggester{err: errors.New("redis down")}
	inbox := &fakeInbox{seen: map[string]bool{}}
	c := &Consumer{logger: discard, inbox: inbox, handler: SlotSuggestedHandler(s, discard)}

	if err := c.process(context.Background(), suggestion("e1")); err == nil {
		t.Fatal("expected infrastructure error")
	}
	if inbox.seen["e1"] {
		t.Fatal("failed event must not stay recorded")
	}

	s.err = nil
	if err := c.process(context.Background(), suggestion("e1")); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if len(s.got) != 2 || !inbox.seen["e1"] {
		t.Fatalf("expected redelivery handled and recorded, got %d calls", len(s.got))
	}
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	onCommit  func()
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	if r.onCommit != nil {
		r.onCommit()
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// flakySuggester fails the first n calls with an infrastructure error.
type flakySuggester struct {
	failures int
	calls    int
}

func (f *flakySuggester) SuggestSlot(context.Context, holds.SuggestRequest) (model.Hold, error) {
	f.calls++
	if f.calls <= f.failures {
		return model.Hold{}, errors.New("redis down")
	}
	return model.Hold{}, nil
}

func TestConsumerRun_RetriesBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &flakySuggester{failures: 2}
	reader := &fakeReader{msgs: []kafka.Message{suggestion("e1")}, onCommit: cancel}
	c := newConsumer(reader, discard, &fakeInbox{seen: map[string]bool{}}, SlotSuggestedHandler(s, discard))
	c.retryBase, c.retryMax = time.Millisecond, 2*time.Millisecond

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}

	if s.calls != 3 {
		t.Fatalf("expected two failures then success, got %d calls", s.calls)
	}
	if len(reader.committed) != 1 || string(reader.committed[0].Key) != "e1" {
		t.Fatalf("expected one commit after success, got %+v", reader.committed)
	}
}

func TestConsumerRun_NoCommitWhenStoppedMidRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &flakySuggester{failures: 1 << 30}
	reader := &fakeReader{msgs: []kafka.Message{suggestion("e1")}}
	c := newConsumer(reader, discard, nil, SlotSuggestedHandler(s, discard))
	c.retryBase, c.retryMax = time.Millisecond, time.Millisecond

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if len(reader.committed) != 0 {
		t.Fatalf("unhandled message must not be committed, got %+v", reader.committed)
	}
}
