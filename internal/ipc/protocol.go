package ipc

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"focusloop/internal/controller"
	"focusloop/internal/cycle"
	"focusloop/internal/prompt"
)

const SocketPath = "/tmp/focusloop.sock"

// Command represents a command sent over the socket
type Command struct {
	Name string `json:"name"`
	Args any    `json:"args,omitempty"`
}

// Response represents a response sent back over the socket
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// --- Command Argument Structs ---

// DeferArgs picks a deferral length. Zero seconds means the first
// configured option.
type DeferArgs struct {
	Seconds int `json:"seconds"`
}

type AddEventArgs struct {
	Tag   string  `json:"tag"`
	Notes string  `json:"notes"`
	Value float64 `json:"value"`
}

type SettingsArgs struct {
	Settings cycle.Settings `json:"settings"`
}

type ReportArgs struct {
	Days int `json:"days"`
}

// --- Command Names ---

const (
	CmdPing        = "ping"
	CmdStatus      = "status"
	CmdStart       = "start"
	CmdStop        = "stop"
	CmdPause       = "pause"
	CmdResume      = "resume"
	CmdDefer       = "defer"
	CmdRest        = "rest"
	CmdInterrupt   = "interrupt"
	CmdSettingsGet = "settings_get"
	CmdSettingsSet = "settings_set"
	CmdAddEvent    = "add_event"
	CmdReport      = "report"
)

// --- Response Data ---

type StatusData struct {
	controller.Status `yaml:",inline"`
	CompletedToday    int             `json:"completed_today" yaml:"completed_today"`
	Prompt            *prompt.Request `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

type SettingsData struct {
	Settings cycle.Settings `json:"settings" yaml:"settings"`
	Applied  bool           `json:"applied" yaml:"applied"`
}

const (
	dialTimeout = 2 * time.Second
	ioTimeout   = 5 * time.Second
)

// Send delivers cmd to the daemon at socketPath and returns its response.
// A response with Success=false is not an error here.
func Send(socketPath string, cmd Command) (Response, error) {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return Response{}, fmt.Errorf("connect %s: %w", socketPath, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(ioTimeout)); err != nil {
		return Response{}, err
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return Response{}, fmt.Errorf("send %s: %w", cmd.Name, err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", cmd.Name, err)
	}
	return resp, nil
}

// DecodeArgs converts the loosely typed Args of a decoded command into v.
func DecodeArgs(args any, v any) error {
	if args == nil {
		return nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// OK builds a success response carrying data.
func OK(message string, data any) Response {
	resp := Response{Success: true, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Fail(fmt.Errorf("encode response: %w", err))
		}
		resp.Data = raw
	}
	return resp
}

// Fail builds an error response.
func Fail(err error) Response {
	return Response{Success: false, Message: err.Error()}
}
