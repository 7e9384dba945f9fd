package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/harun/vesselplan/pkg/history"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect archived plans",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived plans, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <plan-id>",
	Short: "Print an archived plan with its request",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of plans to list (0 for all)")
	historyListCmd.Flags().BoolVar(&historyJSON, "json", false, "print the listing as JSON")
	historyCmd.AddCommand(historyListCmd, historyShowCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory(rt *runEnv) (*history.Store, error) {
	return history.Open(history.Config{DBPath: rt.cfg.History.DBPath, Logger: rt.log.Zerolog()})
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := openHistory(rt)
	if err != nil {
		return err
	}
	defer store.Close()

	plans, err := store.List(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return writeJSON(cmd, plans)
	}
	if len(plans) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No plans archived")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tATTEMPTS\tWAYPOINTS\tCREATED")
	for _, p := range plans {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", p.ID, p.Status, p.Attempts, p.Waypoints, p.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	rt, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := openHistory(rt)
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("plan %s: %w", args[0], err)
	}
	return writeJSON(cmd, entry)
}
