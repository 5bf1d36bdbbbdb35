package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
	"github.com/auditdesk/auditdesk/internal/service"
)

var (
	watchInterval  time.Duration
	watchComponent []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch targets and print access transitions",
	Long: `Re-evaluate access on an interval and print a line whenever a
target opens or closes. Targets come from schedule.watch in the config
unless --component is given.

Examples:
  auditdesk watch
  auditdesk watch --interval 10s --component reports --component exports`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "poll interval (default: schedule.poll_interval)")
	watchCmd.Flags().StringSliceVar(&watchComponent, "component", nil, "watch these components in addition to the global schedule")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	a, err := commandApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	targets := a.cfg.Targets()
	if len(watchComponent) > 0 {
		targets = watchTargets(watchComponent)
	}
	interval := a.cfg.PollInterval()
	if watchInterval > 0 {
		interval = watchInterval
	}

	out := cmd.OutOrStdout()
	watcher := service.NewWatcher(a.access, targets, a.logger,
		service.WithPollInterval(interval),
		service.WithChangeHandler(func(t service.Transition) { printTransition(out, t) }),
	)
	fmt.Fprintf(os.Stderr, "watching %d target(s) every %s, Ctrl+C to stop\n", len(targets), interval)
	return watcher.Run(ctx)
}

// watchTargets builds the global target plus one per component.
func watchTargets(components []string) []schedule.Target {
	targets := []schedule.Target{{Kind: schedule.KindGlobal}}
	for _, c := range components {
		targets = append(targets, schedule.Target{Kind: schedule.KindComponent, Component: c})
	}
	return targets
}

func printTransition(w io.Writer, t service.Transition) {
	state := "closed"
	if t.Decision.Allowed {
		state = "open"
	}
	ts := t.Decision.EvaluatedAt.Format(time.RFC3339)
	switch {
	case t.First:
		fmt.Fprintf(w, "%s  %-24s %-6s %s\n", ts, t.Target, state, t.Decision.Reason)
	case t.Opened():
		fmt.Fprintf(w, "%s  %-24s opened %s\n", ts, t.Target, t.Decision.Reason)
	case t.Closed():
		fmt.Fprintf(w, "%s  %-24s closed %s\n", ts, t.Target, t.Decision.Reason)
	default:
		fmt.Fprintf(w, "%s  %-24s %-6s %s\n", ts, t.Target, state, t.Decision.Reason)
	}
}
