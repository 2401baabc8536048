package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarkSendsPushPayload(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []barkPayload
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p barkPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		got = append(got, p)
		path = r.URL.Path
		mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bark := NewBark(srv.URL+"/", " device-key ", srv.Client())
	ctx := context.Background()

	require.NoError(t, bark.Send(ctx, Notice{Kind: KindFocusComplete, Completed: 2}))
	require.NoError(t, bark.Send(ctx, Notice{Kind: KindDeferralWarning, DeferralCount: 1, MaxDeferrals: 3}))
	require.NoError(t, bark.Send(ctx, Notice{Kind: KindRestStarted}), "rest start is not pushed")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "/push", path)
	assert.Equal(t, "device-key", got[0].DeviceKey)
	assert.Equal(t, "bell", got[0].Sound)
	assert.Equal(t, "active", got[0].Level)
	assert.Equal(t, "alarm", got[1].Sound)
	assert.Equal(t, "timeSensitive", got[1].Level)
	assert.Equal(t, "Last warning!", got[1].Title)
}

func TestBarkWithoutKeyIsSilent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a device key")
	}))
	defer srv.Close()

	assert.NoError(t, NewBark(srv.URL, "", srv.Client()).Send(context.Background(), Notice{Kind: KindFocusComplete}))
}

func TestBarkReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewBark(srv.URL, "k", srv.Client()).Send(context.Background(), Notice{Kind: KindRestComplete})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
}

func TestComposeMessages(t *testing.T) {
	assert.Equal(t, "Focus complete", Compose(Notice{Kind: KindFocusComplete}).Title)
	assert.Equal(t, "Long rest started", Compose(Notice{Kind: KindRestStarted, Extended: true, RestSeconds: 900}).Title)
	assert.Equal(t, "Step away for 15m.", Compose(Notice{Kind: KindRestStarted, RestSeconds: 900}).Body)
	assert.Equal(t, "Rest over", Compose(Notice{Kind: KindRestComplete, Completed: 4}).Title)
	assert.Equal(t, "Still working?", Compose(Notice{Kind: KindDeferralWarning, DeferralCount: 0}).Title)
	assert.Equal(t, "Rest is mandatory now", Compose(Notice{Kind: KindDeferralWarning, DeferralCount: 9}).Title)
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "45s", FormatSeconds(45))
	assert.Equal(t, "25m", FormatSeconds(1500))
	assert.Equal(t, "4m30s", FormatSeconds(270))
}

type stubSender struct {
	name   string
	err    error
	mu     sync.Mutex
	kinds  []Kind
	closed bool
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) Send(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, n.Kind)
	return s.err
}

func (s *stubSender) Close() error {
	s.closed = true
	return s.err
}

func TestHubFansOutAndSwallowsErrors(t *testing.T) {
	ok := &stubSender{name: "ok"}
	broken := &stubSender{name: "broken", err: errors.New("offline")}
	hub := NewHub(zerolog.Nop(), ok, broken)
	ctx := context.Background()

	hub.FocusComplete(ctx, Notice{})
	hub.RestStarted(ctx, Notice{})
	hub.RestComplete(ctx, Notice{})
	hub.DeferralWarning(ctx, Notice{})

	want := []Kind{KindFocusComplete, KindRestStarted, KindRestComplete, KindDeferralWarning}
	assert.Equal(t, want, ok.kinds)
	assert.Equal(t, want, broken.kinds, "a failing sender still receives every notice")

	err := hub.Close()
	assert.ErrorContains(t, err, "offline")
	assert.True(t, ok.closed)
	assert.True(t, broken.closed)
}

func TestSoundSkipsUnmappedKinds(t *testing.T) {
	s := NewSound("/nonexistent/player", map[Kind]string{KindRestComplete: "done.wav"})

	assert.NoError(t, s.Send(context.Background(), Notice{Kind: KindFocusComplete}))
	assert.Error(t, s.Send(context.Background(), Notice{Kind: KindRestComplete}))
}

func TestLogSenderNeverFails(t *testing.T) {
	assert.NoError(t, NewLog(zerolog.Nop()).Send(context.Background(), Notice{Kind: KindRestStarted}))
}
