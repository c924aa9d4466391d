package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/client-risk-service/internal/model"
	"github.com/sells-group/client-risk-service/internal/risk"
)

var (
	configOrg      string
	configWeights  []string
	configLow      float64
	configMedium   float64
	configHigh     float64
	configInterval int
	configAuto     bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or update per-organization risk configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the effective risk configuration",
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
		riskCfg, err := svc.Config(ctx, configOrg)
		if err != nil {
			return eris.Wrap(err, "load risk config")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(riskCfg)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update risk configuration; unset flags keep their current values",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		patch := risk.ConfigPatch{}
		if len(configWeights) > 0 {
			weights, err := parseWeightFlags(configWeights)
			if err != nil {
				return err
			}
			patch.FactorWeights = weights
		}
		if cmd.Flags().Changed("low") || cmd.Flags().Changed("medium") || cmd.Flags().Changed("high") {
			if !cmd.Flags().Changed("low") || !cmd.Flags().Changed("medium") || !cmd.Flags().Changed("high") {
				return eris.New("thresholds must be set together: --low, --medium, --high")
			}
			patch.Thresholds = &model.Thresholds{Low: configLow, Medium: configMedium, High: configHigh}
		}
		if cmd.Flags().Changed("interval-days") {
			patch.AutoAssessIntervalDays = &configInterval
		}
		if cmd.Flags().Changed("auto-assess") {
			patch.EnableAutoAssess = &configAuto
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		svc := initService(st)
		updated, err := svc.UpdateConfig(ctx, configOrg, patch, "cli")
		if err != nil {
			return eris.Wrap(err, "update risk config")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(updated)
	},
}

// parseWeightFlags turns repeated factor=weight flags into a weight map.
func parseWeightFlags(raw []string) (map[model.FactorType]float64, error) {
	weights := make(map[model.FactorType]float64, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, eris.Errorf("invalid weight %q, expected factor=weight", pair)
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, eris.Errorf("invalid weight value in %q", pair)
		}
		weights[model.FactorType(name)] = w
	}
	return weights, nil
}

func init() {
	configCmd.PersistentFlags().StringVar(&configOrg, "org", "", "organization id (default from config)")
	configSetCmd.Flags().StringArrayVar(&configWeights, "weight", nil, "factor weight as factor=weight, repeatable")
	configSetCmd.Flags().Float64Var(&configLow, "low", 0, "low/medium threshold")
	configSetCmd.Flags().Float64Var(&configMedium, "medium", 0, "medium/high threshold")
	configSetCmd.Flags().Float64Var(&configHigh, "high", 0, "high/critical threshold")
	configSetCmd.Flags().IntVar(&configInterval, "interval-days", 0, "assessment validity window in days")
	configSetCmd.Flags().BoolVar(&configAuto, "auto-assess", false, "enable automatic re-assessment")
	configCmd.AddCommand(configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
