package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ticket-workflow/internal/model"
)

var classifyTicket ticketFlags

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify a single ticket without running the rest of the workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		ticket, err := classifyTicket.ticket(cmd.InOrStdin())
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		res, step, err := env.Pipeline.Classify(ctx, ticket)
		if err != nil {
			return eris.Wrap(err, "classify ticket")
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			Classification model.ClassificationResult `json:"classification"`
			Step           model.StepResult           `json:"step"`
		}{res, step})
	},
}

var (
	routeCategory string
	routeSeverity string
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Show the routing decision for a category and severity",
	RunE: func(cmd *cobra.Command, args []string) error {
		category := model.Category(routeCategory)
		if !category.Valid() {
			return eris.Errorf("unknown category %q", routeCategory)
		}
		severity := model.Severity(routeSeverity)
		if !severity.Valid() {
			return eris.Errorf("unknown severity %q", routeSeverity)
		}

		env, err := initPipeline(cmd.Context(), "process")
		if err != nil {
			return err
		}
		defer env.Close()

		return writeJSON(cmd.OutOrStdout(), env.Pipeline.Route(category, severity, nil))
	},
}

func init() {
	classifyTicket.register(classifyCmd.Flags())
	rootCmd.AddCommand(classifyCmd)

	routeCmd.Flags().StringVar(&routeCategory, "category", "", "ticket category (required)")
	routeCmd.Flags().StringVar(&routeSeverity, "severity", "medium", "ticket severity")
	_ = routeCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(routeCmd)
}
