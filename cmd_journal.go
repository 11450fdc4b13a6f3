package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"apex_hunter_go/config"
	"apex_hunter_go/journal"

	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the trade journal",
	Long: `Query closed trades and risk-chain rejections recorded by the engine.

Examples:
  apex_hunter journal trades --limit 20
  apex_hunter journal rejections`,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List the most recent closed trades",
	Args:  cobra.NoArgs,
	RunE:  runJournalTrades,
}

var journalRejectionsCmd = &cobra.Command{
	Use:   "rejections",
	Short: "List the most recent risk-chain rejections",
	Args:  cobra.NoArgs,
	RunE:  runJournalRejections,
}

var journalLimit int

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalRejectionsCmd)

	journalCmd.PersistentFlags().IntVarP(&journalLimit, "limit", "n", 20, "number of records to show")
}

// openJournal uses the configured store; JOURNAL_DSN overrides the file's dsn.
func openJournal() (*journal.Journal, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dsn := cfg.Journal.DSN
	if env := config.LoadEnvConfig().JournalDSN; env != "" {
		dsn = env
	}
	j, err := journal.Open(cfg.Journal.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return j, nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	trades, err := j.RecentTrades(journalLimit)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXIT TIME\tSTRATEGY\tSYMBOL\tSIDE\tENTRY\tEXIT\tLEV\tPNL USD\tPNL %\tREASON\tBALANCE")
	for _, t := range trades {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%dx\t%+.4f\t%+.2f\t%s\t%.2f\n",
			t.ExitTime.Local().Format("2006-01-02 15:04:05"), t.StrategyID, t.Symbol, t.Side,
			t.EntryPrice, t.ExitPrice, t.Leverage, t.PnLUSD, t.PnLPercent, t.ExitReason, t.BalanceAfter)
	}
	return w.Flush()
}

func runJournalRejections(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.RecentRejections(journalLimit)
	if err != nil {
		return fmt.Errorf("list rejections: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No rejections recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSTRATEGY\tSYMBOL\tLAYER\tREASON\tDETAILS")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.At.Local().Format("2006-01-02 15:04:05"), r.StrategyID, r.Symbol, r.Layer, r.Reason, r.Details)
	}
	return w.Flush()
}
