package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
	"github.com/auditdesk/auditdesk/internal/service"
)

var (
	targetKind      string
	targetComponent string
	targetAt        string
	outputJSON      bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check access for a target once",
	Long: `Evaluate the configured rules and print whether access is allowed.

The exit status is 0 whether access is allowed or denied; use --json and
the "allowed" field in scripts.

Examples:
  auditdesk check
  auditdesk check --kind component --component reports
  auditdesk check --at 2024-01-05T18:30:00+07:00 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, at, err := parseTargetFlags(targetKind, targetComponent, targetAt)
		if err != nil {
			return err
		}
		a, err := commandApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return runCheck(cmd.Context(), a.access, target, at, cmd.OutOrStdout(), outputJSON)
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show when a target next becomes accessible",
	Long: `Project the next opening of a target within the coming week.

Examples:
  auditdesk next
  auditdesk next --kind component --component reports --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, at, err := parseTargetFlags(targetKind, targetComponent, targetAt)
		if err != nil {
			return err
		}
		a, err := commandApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return runNext(cmd.Context(), a.access, target, at, cmd.OutOrStdout(), outputJSON)
	},
}

func init() {
	for _, c := range []*cobra.Command{checkCmd, nextCmd} {
		c.Flags().StringVar(&targetKind, "kind", "global", "target kind: global or component")
		c.Flags().StringVar(&targetComponent, "component", "", "component name (required for --kind component)")
		c.Flags().StringVar(&targetAt, "at", "", "evaluate at this RFC 3339 time instead of now")
		c.Flags().BoolVar(&outputJSON, "json", false, "print the result as JSON")
		rootCmd.AddCommand(c)
	}
}

// parseTargetFlags validates the shared target flags. An empty at means now.
func parseTargetFlags(kind, component, at string) (schedule.Target, time.Time, error) {
	k, err := schedule.ParseKind(kind)
	if err != nil {
		return schedule.Target{}, time.Time{}, err
	}
	target := schedule.Target{Kind: k, Component: strings.TrimSpace(component)}
	if err := target.Validate(); err != nil {
		return schedule.Target{}, time.Time{}, err
	}
	var t time.Time
	if at != "" {
		t, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return schedule.Target{}, time.Time{}, fmt.Errorf("--at must be an RFC 3339 timestamp: %w", err)
		}
	}
	return target, t, nil
}

func runCheck(ctx context.Context, access *service.AccessService, target schedule.Target, at time.Time, w io.Writer, asJSON bool) error {
	d := access.CheckAccess(ctx, target, at)
	if asJSON {
		return writeJSON(w, d)
	}

	verdict := "DENIED"
	if d.Allowed {
		verdict = "ALLOWED"
	}
	fmt.Fprintf(w, "%s  %s\n", verdict, target)
	fmt.Fprintf(w, "  reason:  %s\n", d.Reason)
	fmt.Fprintf(w, "  outcome: %s\n", d.Outcome)
	if d.MatchedRule != nil {
		fmt.Fprintf(w, "  rule:    %s (%s)\n", d.MatchedRule.Label(), d.MatchedRule.ID)
	}
	if d.Cause != "" {
		fmt.Fprintf(w, "  cause:   %s\n", d.Cause)
	}
	writeRuleErrors(w, d.RuleErrors)
	return nil
}

func runNext(ctx context.Context, access *service.AccessService, target schedule.Target, at time.Time, w io.Writer, asJSON bool) error {
	next := access.NextAccessTime(ctx, target, at)
	if asJSON {
		return writeJSON(w, next)
	}

	switch {
	case next.Cause != "":
		fmt.Fprintf(w, "%s: unable to project next access: %s\n", target, next.Cause)
	case next.Always:
		fmt.Fprintf(w, "%s: always available\n", target)
	case next.NextTime != "":
		fmt.Fprintf(w, "%s: next available %s\n", target, next.NextTime)
		if next.Rule != nil {
			fmt.Fprintf(w, "  rule: %s (%s)\n", next.Rule.Label(), next.Rule.ID)
		}
	default:
		fmt.Fprintf(w, "%s: no opening within the next week\n", target)
	}
	writeRuleErrors(w, next.RuleErrors)
	return nil
}

func writeRuleErrors(w io.Writer, errs []schedule.RuleError) {
	for _, e := range errs {
		fmt.Fprintf(w, "  invalid rule %q: %s: %s\n", e.RuleName, e.Field, e.Message)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
