package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"focusloop/internal/ipc"
	"focusloop/internal/notify"
	"focusloop/internal/report"
)

func decodeData(resp ipc.Response, into any) error {
	if len(resp.Data) == 0 {
		return fmt.Errorf("daemon sent no data")
	}
	if err := json.Unmarshal(resp.Data, into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// printResponse writes resp in the selected format. into, when non-nil,
// is the typed shape of resp.Data.
func printResponse(w io.Writer, resp ipc.Response, into any) error {
	if into == nil || len(resp.Data) == 0 {
		return printValue(w, resp.Message, nil)
	}
	if err := decodeData(resp, into); err != nil {
		return err
	}
	return printValue(w, resp.Message, into)
}

func printValue(w io.Writer, message string, v any) error {
	switch outputFormat {
	case "json":
		if v == nil {
			v = map[string]string{"message": message}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		if v == nil {
			v = map[string]string{"message": message}
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	switch data := v.(type) {
	case *ipc.StatusData:
		_, err := io.WriteString(w, statusText(message, data))
		return err
	case *report.Summary:
		return data.WriteText(w)
	case report.Summary:
		return data.WriteText(w)
	case *ipc.SettingsData:
		if _, err := fmt.Fprintln(w, message); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(data.Settings); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := fmt.Fprintln(w, message)
	return err
}

func statusText(message string, st *ipc.StatusData) string {
	var b strings.Builder
	fmt.Fprintln(&b, message)
	fmt.Fprintf(&b, "  Completed:  %d total, %d today\n", st.Completed, st.CompletedToday)
	if st.Total > 0 {
		fmt.Fprintf(&b, "  Interval:   %s\n", notify.FormatSeconds(st.Total))
	}
	if st.Extended {
		b.WriteString("  Rest:       extended\n")
	}
	if st.MaxDeferrals > 0 {
		fmt.Fprintf(&b, "  Deferrals:  %d of %d, %s deferred\n", st.DeferralCount, st.MaxDeferrals, notify.FormatSeconds(st.Accumulated))
	}
	if st.Prompt != nil {
		opts := make([]string, len(st.Prompt.Options))
		for i, o := range st.Prompt.Options {
			opts[i] = notify.FormatSeconds(o)
		}
		fmt.Fprintf(&b, "  Waiting:    since %s, choose `rest` or `defer` (%s)\n",
			st.Prompt.AskedAt.Local().Format(time.Kitchen), strings.Join(opts, ", "))
	}
	if st.PendingSettings {
		b.WriteString("  Settings:   new settings apply after this cycle\n")
	}
	return b.String()
}
