package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBarkServer is the public Bark relay.
const DefaultBarkServer = "https://api.day.app"

// Bark pushes notices to an iOS device through a Bark server.
type Bark struct {
	server string
	key    string
	group  string
	client *http.Client
}

type barkPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Sound     string `json:"sound,omitempty"`
	Level     string `json:"level"`
	Group     string `json:"group"`
	IsArchive string `json:"isArchive"`
}

// NewBark returns a Bark sender. An empty server means DefaultBarkServer and
// a nil client gets a 10s timeout.
func NewBark(server, key string, client *http.Client) *Bark {
	if server == "" {
		server = DefaultBarkServer
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Bark{
		server: strings.TrimRight(server, "/"),
		key:    strings.TrimSpace(key),
		group:  "focusloop",
		client: client,
	}
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Send(ctx context.Context, n Notice) error {
	if b.key == "" {
		return nil
	}
	payload := barkPayload{
		DeviceKey: b.key,
		Level:     "active",
		Group:     b.group,
		IsArchive: "1",
	}
	msg := Compose(n)
	payload.Title, payload.Body = msg.Title, msg.Body
	switch n.Kind {
	case KindFocusComplete:
		payload.Sound = "bell"
	case KindRestComplete:
		payload.Sound = "chime"
	case KindDeferralWarning:
		payload.Sound = "alarm"
		payload.Level = "timeSensitive"
	default:
		// Rest start is shown locally only.
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode bark payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.server+"/push", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bark request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bark push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bark push: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
