package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/state"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset auditdesk to a clean state",
	Long: `Remove state.json, its backup and its lock file. This deletes every
rule created through the API or "rules import" when the state driver is used.

On next start, seed_rules from the config are applied to the empty store.

Examples:
  # Reset with interactive confirmation
  auditdesk reset

  # Reset without prompting
  auditdesk reset --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	return resetState(state.NewFileStateStore(cfg.Storage.StatePath, newLogger(io.Discard, cfg)),
		resetForce, cmd.InOrStdin(), cmd.ErrOrStderr())
}

// resetState removes the state files after confirmation read from in.
func resetState(store *state.FileStateStore, force bool, in io.Reader, out io.Writer) error {
	if !store.Exists() {
		fmt.Fprintln(out, "Nothing to reset: no state file found.")
		return nil
	}

	if !force {
		fmt.Fprintf(out, "This removes %s and its backup.\nProceed? [y/N] ", store.Path())
		answer, _ := bufio.NewReader(in).ReadString('\n')
		if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	removed, err := store.Remove()
	for _, p := range removed {
		fmt.Fprintf(out, "  Removed %s\n", p)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Reset complete. auditdesk will start fresh on next launch.")
	return nil
}
