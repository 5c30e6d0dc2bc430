package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pipelineStub struct {
	mu    sync.Mutex
	seen  []core.Inbound
	fail  map[string]bool
	delay time.Duration
}

func (p *pipelineStub) ProcessMessage(_ context.Context, in core.Inbound) (*core.State, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	p.seen = append(p.seen, in)
	p.mu.Unlock()

	state := core.NewState(in.Text)
	if p.fail[in.Text] {
		return state, &core.ProcessingError{State: state, Stage: "dispatch", Message: "boom"}
	}
	state.Category = core.CategoryMaintenance
	state.Set(core.MetaUrgency, "high")
	state.Set(core.MetaHandler, "maintenance")
	state.Append(core.RoleAssistant, "handled: "+in.Text)
	return state, nil
}

func seed(t *testing.T, inbox *store.MemoryInbox, texts ...string) {
	t.Helper()
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	for _, text := range texts {
		n++
		at := base.Add(time.Duration(n) * time.Second)
		inbox.SetClock(func() time.Time { return at })
		_, err := inbox.Enqueue(context.Background(), store.NewMessage{Content: text, Location: "3B"})
		require.NoError(t, err)
	}
}

func TestRefreshKeepsInboxOrder(t *testing.T) {
	inbox := store.NewMemoryInbox()
	seed(t, inbox, "one", "two", "three", "four", "five")
	pipe := &pipelineStub{}
	p := NewProcessor(inbox, pipe, nil, nil, Options{Concurrency: 3})

	results, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, want := range []string{"one", "two", "three", "four", "five"} {
		assert.Equal(t, want, results[i].Original)
		assert.Equal(t, "handled: "+want, results[i].Processed)
		assert.Equal(t, "maintenance", results[i].Handler)
	}
	assert.Equal(t, "3B", pipe.seen[0].Location)

	left, err := inbox.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRefreshLeavesFailedMessagesUnprocessed(t *testing.T) {
	inbox := store.NewMemoryInbox()
	seed(t, inbox, "ok", "bad")
	p := NewProcessor(inbox, &pipelineStub{fail: map[string]bool{"bad": true}}, nil, nil, Options{})

	results, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Failed)
	assert.True(t, results[1].Failed)
	assert.Equal(t, core.UserMessage, results[1].Processed)

	left, err := inbox.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "bad", left[0].Content)
}

func TestRefreshDrainsEveryBatch(t *testing.T) {
	inbox := store.NewMemoryInbox()
	seed(t, inbox, "a", "b", "c", "d", "e")
	p := NewProcessor(inbox, &pipelineStub{}, nil, nil, Options{BatchSize: 2})

	results, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, want := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, want, results[i].Original)
	}
	left, err := inbox.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRefreshFailuresDoNotStarveNewerMessages(t *testing.T) {
	inbox := store.NewMemoryInbox()
	seed(t, inbox, "bad1", "bad2", "good", "good2")
	pipe := &pipelineStub{fail: map[string]bool{"bad1": true, "bad2": true}}
	p := NewProcessor(inbox, pipe, nil, nil, Options{BatchSize: 2})

	results, err := p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Len(t, pipe.seen, 4, "each message runs once per refresh")
	assert.False(t, results[2].Failed)
	assert.False(t, results[3].Failed)

	left, err := inbox.ListUnprocessed(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	for _, m := range left {
		assert.Equal(t, 1, m.Attempts)
	}

	// A message arriving after the failures is listed ahead of them.
	seed(t, inbox, "fresh")
	next, err := inbox.ListUnprocessed(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "fresh", next[0].Content)

	results, err = p.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "fresh", results[0].Original)
	assert.False(t, results[0].Failed)
	assert.True(t, results[1].Failed)
	assert.True(t, results[2].Failed)
}

func TestRefreshRejectsConcurrentRun(t *testing.T) {
	lock := NewLocalLocker()
	release, ok, err := lock.TryLock(context.Background(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	p := NewProcessor(store.NewMemoryInbox(), &pipelineStub{}, lock, nil, Options{})
	_, err = p.Refresh(context.Background())
	assert.True(t, errors.Is(err, ErrRefreshInProgress))

	release()
	results, err := p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}
