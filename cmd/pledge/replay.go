package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

var replayDump bool

var replayCmd = &cobra.Command{
	Use:   "replay <script.yaml>",
	Short: "Replay a scenario script against a ledger",
	Long: `Replay runs the steps of a YAML scenario on a mock clock, printing the
outcome of each step. A step with "expect" must fail with that error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		script, err := ParseScript(data)
		if err != nil {
			return err
		}

		mock := clock.NewMock()
		start := script.Start
		if start.IsZero() {
			start = time.Now()
		}
		mock.Set(start)

		currency := viper.GetString("currency")
		if script.Currency != "" {
			currency = script.Currency
		}
		wallet := vault.NewWallet(types.Zero(currency).Currency)

		// Applied after the configured options, so the script wins.
		opts := []pledge.Option{
			pledge.WithClock(mock),
			pledge.WithCurrency(currency),
			pledge.WithSink(wallet),
		}
		for _, op := range script.Operators {
			opts = append(opts, pledge.WithVaultOperators(types.Address(op)))
		}

		ctx := cmd.Context()
		l, err := openLedger(ctx, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := l.Stop(); err != nil {
				slog.Warn("pledge: stop", "error", err)
			}
		}()

		runner := NewRunner(l, mock, wallet, cmd.OutOrStdout())
		if err := runner.Run(ctx, script.Steps); err != nil {
			return err
		}

		st, err := l.State(ctx)
		if err != nil {
			return err
		}
		if replayDump {
			spew.Fdump(cmd.OutOrStdout(), st)
			return nil
		}
		printSummary(cmd, st)
		return nil
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayDump, "dump", false, "Dump the final ledger state")
	rootCmd.AddCommand(replayCmd)
}

func printSummary(cmd *cobra.Command, st *pledge.State) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "managers: %d  notes: %d  payments: %d\n", len(st.Managers), len(st.Notes), len(st.Payments))
	fmt.Fprintf(out, "not paid: %s  paying: %s  paid: %s\n",
		st.Total(note.NotPaid), st.Total(note.Paying), st.Total(note.Paid))
}
