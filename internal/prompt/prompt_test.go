package prompt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusloop/internal/cycle"
)

type result struct {
	choice cycle.Event
	err    error
}

func ask(m *Mailbox, ctx context.Context, req Request) <-chan result {
	out := make(chan result, 1)
	go func() {
		choice, err := m.Prompt(ctx, req)
		out <- result{choice, err}
	}()
	return out
}

func waitPending(t *testing.T, m *Mailbox, seq uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		req, ok := m.Pending()
		return ok && req.Seq == seq
	}, time.Second, time.Millisecond)
}

func TestMailboxAnswerResolvesPrompt(t *testing.T) {
	m := NewMailbox()
	done := ask(m, context.Background(), Request{Seq: 1, DeferralCount: 0, MaxDeferrals: 3})
	waitPending(t, m, 1)

	require.NoError(t, m.Answer(cycle.Defer(300)))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, cycle.Defer(300), r.choice)
	case <-time.After(time.Second):
		t.Fatal("prompt did not return after answer")
	}

	_, ok := m.Pending()
	assert.False(t, ok)
	assert.ErrorIs(t, m.Answer(cycle.On(cycle.EventBeginRest)), ErrNoPrompt)
}

func TestMailboxContextCancelClearsPrompt(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	done := ask(m, ctx, Request{Seq: 7})
	waitPending(t, m, 7)

	cancel()
	r := <-done
	assert.ErrorIs(t, r.err, context.Canceled)

	_, ok := m.Pending()
	assert.False(t, ok, "cancelled prompt must not stay pending")
}

func TestMailboxRejectsInvalidChoice(t *testing.T) {
	m := NewMailbox()
	ask(m, context.Background(), Request{Seq: 1})
	waitPending(t, m, 1)

	assert.ErrorIs(t, m.Answer(cycle.On(cycle.EventStop)), ErrInvalidChoice)
	assert.ErrorIs(t, m.Answer(cycle.Defer(-1)), ErrInvalidChoice)

	_, ok := m.Pending()
	assert.True(t, ok, "an invalid answer leaves the question open")
}

func TestMailboxNewerPromptReplacesOlder(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ask(m, ctx, Request{Seq: 1})
	waitPending(t, m, 1)
	second := ask(m, context.Background(), Request{Seq: 2})
	waitPending(t, m, 2)

	require.NoError(t, m.Answer(cycle.On(cycle.EventBeginRest)))
	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, cycle.EventBeginRest, r.choice.Kind)
}

func TestMailboxAskedKeepsLatest(t *testing.T) {
	m := NewMailbox()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ask(m, ctx, Request{Seq: 1})
	waitPending(t, m, 1)
	ask(m, ctx, Request{Seq: 2})
	waitPending(t, m, 2)

	select {
	case req := <-m.Asked():
		assert.Equal(t, uint64(2), req.Seq)
	case <-time.After(time.Second):
		t.Fatal("no question delivered")
	}
}
