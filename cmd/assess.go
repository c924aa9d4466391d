package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/risk"
)

var (
	assessHistory     bool
	assessRecalculate bool
	assessActor       string
)

var assessCmd = &cobra.Command{
	Use:   "assess <client-id>",
	Short: "Assess one client and print the result",
	Args:  cobra.ExactArgs(1),
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
		view, err := svc.Assess(ctx, risk.AssessRequest{
			ClientID:       args[0],
			IncludeHistory: assessHistory,
			Recalculate:    assessRecalculate,
			TriggeredBy:    model.TriggerManual,
			Actor:          assessActor,
		})
		if err != nil {
			return eris.Wrap(err, "assess client")
		}

		zap.L().Info("assessment complete",
			zap.String("client_id", view.ClientID),
			zap.Float64("overall_score", view.OverallScore),
			zap.String("risk_level", string(view.RiskLevel)),
			zap.Bool("cached", view.Cached),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	},
}

func init() {
	assessCmd.Flags().BoolVar(&assessHistory, "history", false, "include previous score and trend")
	assessCmd.Flags().BoolVar(&assessRecalculate, "recalculate", false, "force recomputation even when a valid assessment exists")
	assessCmd.Flags().StringVar(&assessActor, "actor", "cli", "actor recorded on the assessment")
	rootCmd.AddCommand(assessCmd)
}
