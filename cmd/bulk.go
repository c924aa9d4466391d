package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	bulkActor       string
	bulkRecalculate bool
)

var bulkCmd = &cobra.Command{
	Use:   "bulk <client-id>...",
	Short: "Assess multiple clients in one run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		svc := initService(st)
		result, err := svc.BulkAssess(ctx, args, bulkRecalculate, bulkActor)
		if err != nil {
			return eris.Wrap(err, "bulk assess")
		}

		zap.L().Info("bulk assessment complete",
			zap.Int("assessed", result.Assessed),
			zap.Int("failed", result.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	bulkCmd.Flags().StringVar(&bulkActor, "actor", "cli", "actor recorded on the assessments")
	bulkCmd.Flags().BoolVar(&bulkRecalculate, "recalculate", false, "recompute every client even when a valid assessment exists")
	rootCmd.AddCommand(bulkCmd)
}
