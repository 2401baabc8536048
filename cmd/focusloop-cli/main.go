package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"focusloop/internal/cycle"
	"focusloop/internal/ipc"
	"focusloop/internal/report"

	sqlitestore "focusloop/internal/storage/sqlite"
)

var (
	socketPath   string
	dbPath       string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "focusloop-cli",
	Short: "CLI tool to interact with the focusloop daemon",
	Long:  `A command-line interface to drive the focus/rest cycle of a running focusloop daemon over its Unix socket.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch outputFormat {
		case "text", "json", "yaml":
			return nil
		}
		return fmt.Errorf("invalid --output %q, use text, json or yaml", outputFormat)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// sendCommand talks to the daemon and prints the result.
func sendCommand(cmd ipc.Command, into any) error {
	resp, err := ipc.Send(socketPath, cmd)
	if err != nil {
		return fmt.Errorf("%w\nIs the focusloop daemon running?", err)
	}
	if !resp.Success {
		return fmt.Errorf("daemon: %s", resp.Message)
	}
	return printResponse(os.Stdout, resp, into)
}

func cycleCommand(use, short, name string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendCommand(ipc.Command{Name: name}, &ipc.StatusData{})
		},
	}
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the focusloop daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(ipc.Command{Name: ipc.CmdPing}, nil)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current phase, countdown and today's completed cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(ipc.Command{Name: ipc.CmdStatus}, &ipc.StatusData{})
	},
}

var deferCmd = &cobra.Command{
	Use:   "defer [seconds]",
	Short: "Postpone the rest (default: the first configured deferral option)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var deferArgs ipc.DeferArgs
		if len(args) == 1 {
			seconds, err := parseSeconds(args[0])
			if err != nil {
				return err
			}
			deferArgs.Seconds = seconds
		}
		return sendCommand(ipc.Command{Name: ipc.CmdDefer, Args: deferArgs}, &ipc.StatusData{})
	},
}

// parseSeconds accepts plain seconds ("300") or a Go duration ("5m").
func parseSeconds(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("deferral must be positive, got %d", n)
		}
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid deferral %q: use seconds or a duration like 5m", s)
	}
	if d < time.Second {
		return 0, fmt.Errorf("deferral must be at least 1s, got %s", d)
	}
	return int(d / time.Second), nil
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the cycle settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the active cycle settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(ipc.Command{Name: ipc.CmdSettingsGet}, &ipc.SettingsData{})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change cycle settings (seconds); unset flags keep their value",
	Long: `Change the cycle settings of the running daemon. Lengths are in seconds and
flags left unset keep their current value. A cycle in progress finishes with
the old settings.

Changes last until the daemon restarts, which loads the config file again. Put
permanent values in the cycle section of the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := ipc.Send(socketPath, ipc.Command{Name: ipc.CmdSettingsGet})
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("daemon: %s", resp.Message)
		}
		var current ipc.SettingsData
		if err := decodeData(resp, &current); err != nil {
			return err
		}
		s := applySettingsFlags(cmd, current.Settings)
		return sendCommand(ipc.Command{Name: ipc.CmdSettingsSet, Args: ipc.SettingsArgs{Settings: s}}, &ipc.SettingsData{})
	},
}

func applySettingsFlags(cmd *cobra.Command, s cycle.Settings) cycle.Settings {
	flags := cmd.Flags()
	ints := map[string]*int{
		"focus":         &s.FocusSeconds,
		"rest":          &s.BaseRestSeconds,
		"long-rest":     &s.ExtendedRestSeconds,
		"interval":      &s.ExtendedRestInterval,
		"max-deferrals": &s.MaxDeferrals,
		"bonus-divisor": &s.BonusDivisor,
		"bonus-unit":    &s.BonusUnit,
	}
	for name, field := range ints {
		if flags.Changed(name) {
			*field, _ = flags.GetInt(name)
		}
	}
	if flags.Changed("options") {
		s.DeferralOptions, _ = flags.GetIntSlice("options")
	}
	return s
}

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Manage custom events",
}

var eventAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a custom event",
	RunE: func(cmd *cobra.Command, args []string) error {
		tag, _ := cmd.Flags().GetString("tag")
		notes, _ := cmd.Flags().GetString("notes")
		value, _ := cmd.Flags().GetFloat64("value")
		return sendCommand(ipc.Command{
			Name: ipc.CmdAddEvent,
			Args: ipc.AddEventArgs{Tag: tag, Notes: notes, Value: value},
		}, nil)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize cycles, deferrals and focused applications",
	Long: `Summarize recent history. By default the daemon is asked; with --db the
database file is read directly, which works while the daemon is stopped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if dbPath == "" {
			return sendCommand(ipc.Command{Name: ipc.CmdReport, Args: ipc.ReportArgs{Days: days}}, &report.Summary{})
		}
		sum, err := reportFromDB(cmd.Context(), dbPath, days)
		if err != nil {
			return err
		}
		return printValue(os.Stdout, "", sum)
	},
}

func reportFromDB(ctx context.Context, path string, days int) (report.Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return report.Summary{}, fmt.Errorf("database file %s: %w", path, err)
	}
	if days < 1 {
		days = 1
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	store := sqlitestore.NewSQLiteStore(path)
	if err := store.Init(ctx); err != nil {
		return report.Summary{}, fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	end := time.Now()
	start := report.StartOfDay(end).AddDate(0, 0, -(days - 1))
	events, err := store.GetEvents(ctx, start, end)
	if err != nil {
		return report.Summary{}, fmt.Errorf("failed to fetch events: %w", err)
	}
	return report.Summarize(events, start, end), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocket(), "Path to the daemon socket")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")

	rootCmd.AddCommand(pingCmd, statusCmd)
	rootCmd.AddCommand(
		cycleCommand("start", "Start a focus interval", ipc.CmdStart),
		cycleCommand("stop", "Stop the current interval", ipc.CmdStop),
		cycleCommand("pause", "Pause the focus or rest countdown", ipc.CmdPause),
		cycleCommand("resume", "Resume a paused countdown", ipc.CmdResume),
		cycleCommand("rest", "Begin the rest now", ipc.CmdRest),
		cycleCommand("interrupt", "Abandon the focus interval", ipc.CmdInterrupt),
		deferCmd,
	)

	sf := settingsSetCmd.Flags()
	sf.Int("focus", 0, "Focus length in seconds")
	sf.Int("rest", 0, "Rest length in seconds")
	sf.Int("long-rest", 0, "Extended rest length in seconds")
	sf.Int("interval", 0, "Every Nth rest is extended (0 disables)")
	sf.Int("max-deferrals", 0, "Deferrals allowed per cycle")
	sf.Int("bonus-divisor", 0, "Deferred seconds per bonus unit")
	sf.Int("bonus-unit", 0, "Bonus rest seconds per divisor")
	sf.IntSlice("options", nil, "Deferral options in seconds, e.g. 300,600,900")
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)

	eventAddCmd.Flags().StringP("tag", "t", "", "Tag for the custom event (required)")
	eventAddCmd.Flags().StringP("notes", "n", "", "Optional notes for the custom event")
	eventAddCmd.Flags().Float64P("value", "v", 0, "Optional numeric value for the custom event")
	_ = eventAddCmd.MarkFlagRequired("tag")
	eventCmd.AddCommand(eventAddCmd)
	rootCmd.AddCommand(eventCmd)

	reportCmd.Flags().IntP("days", "d", 7, "Number of days to include, today counting as one")
	reportCmd.Flags().StringVar(&dbPath, "db", "", "Read this database file instead of asking the daemon")
	rootCmd.AddCommand(reportCmd)
}

func defaultSocket() string {
	if p := os.Getenv("FOCUSLOOP_SOCKET_PATH"); p != "" {
		return p
	}
	return ipc.SocketPath
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
