package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/risk"
)

var (
	highRiskMinLevel string
	highRiskCategory string
	highRiskPage     int
	highRiskLimit    int
)

var highRiskCmd = &cobra.Command{
	Use:   "high-risk",
	Short: "List clients whose latest assessment meets a minimum risk level",
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
		page, err := svc.HighRisk(ctx, risk.HighRiskQuery{
			MinLevel: model.RiskLevel(highRiskMinLevel),
			Category: model.FactorCategory(highRiskCategory),
			Page:     highRiskPage,
			Limit:    highRiskLimit,
		})
		if err != nil {
			return eris.Wrap(err, "query high-risk clients")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	},
}

func init() {
	highRiskCmd.Flags().StringVar(&highRiskMinLevel, "min-level", "high", "minimum risk level (low|medium|high|critical)")
	highRiskCmd.Flags().StringVar(&highRiskCategory, "category", "", "restrict to a factor category")
	highRiskCmd.Flags().IntVar(&highRiskPage, "page", 1, "page number")
	highRiskCmd.Flags().IntVar(&highRiskLimit, "limit", 20, "page size")
	rootCmd.AddCommand(highRiskCmd)
}
