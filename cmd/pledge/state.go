package main

import (
	"github.com/davecgh/go-spew/spew"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var (
	stateDump bool
	stateJSON bool
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the ledger state",
	Long:  `State is most useful with a persistent store (--driver leveldb).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		l, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = l.Stop() }()

		st, err := l.State(ctx)
		if err != nil {
			return err
		}

		switch {
		case stateDump:
			spew.Fdump(cmd.OutOrStdout(), st)
		case stateJSON:
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		default:
			printSummary(cmd, st)
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().BoolVar(&stateDump, "dump", false, "Dump every record")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the state as JSON")
	rootCmd.AddCommand(stateCmd)
}
