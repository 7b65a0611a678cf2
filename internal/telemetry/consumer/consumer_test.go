package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/portal/internal/logging"
	"backoffice/portal/internal/telemetry/domain"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.msgs) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

type fakePusher struct {
	mu   sync.Mutex
	got  [][]byte
	fail error
}

func (p *fakePusher) PushEventJSON(ctx context.Context, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, raw)
	return p.fail
}

type fakeSaver struct {
	mu   sync.Mutex
	got  []*domain.AuthEvent
	fail error
}

func (s *fakeSaver) Save(ctx context.Context, e *domain.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, e)
	return s.fail
}

const sampleEvent = `{"id":"ev-1","event_type":"otp_verified","realm":"admin","principal_id":"u1","created_at":"2026-03-01T10:00:00Z"}`

func TestHandle_FansOutToBothSinks(t *testing.T) {
	p, s := &fakePusher{}, &fakeSaver{}
	c := New(nil, p, s, logging.Discard())

	failed := c.Handle(context.Background(), []byte(sampleEvent))

	assert.Equal(t, 0, failed)
	require.Len(t, p.got, 1)
	assert.JSONEq(t, sampleEvent, string(p.got[0]))
	require.Len(t, s.got, 1)
	assert.Equal(t, "ev-1", s.got[0].ID)
	assert.Equal(t, "admin", s.got[0].Realm)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), s.got[0].CreatedAt.UTC())
}

func TestHandle_SinkFailuresAreCounted(t *testing.T) {
	p := &fakePusher{fail: errors.New("loki 503")}
	s := &fakeSaver{fail: errors.New("db down")}
	c := New(nil, p, s, logging.Discard())

	assert.Equal(t, 2, c.Handle(context.Background(), []byte(sampleEvent)))
}

func TestHandle_UndecodableStillPushed(t *testing.T) {
	p, s := &fakePusher{}, &fakeSaver{}
	c := New(nil, p, s, logging.Discard())

	assert.Equal(t, 1, c.Handle(context.Background(), []byte("not json")))
	assert.Len(t, p.got, 1)
	assert.Empty(t, s.got)
}

func TestHandle_NilSinksSkipped(t *testing.T) {
	c := New(nil, nil, nil, logging.Discard())
	assert.Equal(t, 0, c.Handle(context.Background(), []byte(sampleEvent)))
}

func TestRun_CommitsEveryMessageAndStopsOnCancel(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 7, Value: []byte(sampleEvent)},
		kafka.Message{Offset: 8, Value: []byte(sampleEvent)},
	)
	p := &fakePusher{fail: errors.New("loki 503")}
	c := New(r, p, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("messages were not committed")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, []int64{7, 8}, r.committed)
	assert.Len(t, p.got, 2)
}

func TestRun_FetchErrorIsRetried(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 1, Value: []byte(sampleEvent)})
	r.fetchErrs = []error{errors.New("broker gone")}
	c := New(r, &fakePusher{}, nil, logging.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case <-r.drained:
	case <-ctx.Done():
		t.Fatal("message after a fetch error was never consumed")
	}
}
