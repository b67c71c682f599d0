package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/memoryloop"
)

var outcomeDelta string

func init() {
	rootCmd.AddCommand(outcomesCmd)
	outcomesCmd.AddCommand(outcomesDueCmd)
	outcomesCmd.AddCommand(outcomesRecordCmd)
	rootCmd.AddCommand(insightsCmd)

	outcomesRecordCmd.Flags().StringVar(&outcomeDelta, "delta", "", "What turned out differently than assumed")
}

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Follow up on past decisions",
	Args:  cobra.NoArgs,
	RunE:  runOutcomesList,
}

var outcomesDueCmd = &cobra.Command{
	Use:   "due",
	Short: "Show the decision waiting for a follow-up",
	Args:  cobra.NoArgs,
	RunE:  runOutcomesDue,
}

var outcomesRecordCmd = &cobra.Command{
	Use:   "record <receipt-id> <better|expected|worse|unsure|dismissed>",
	Short: "Record how a decision turned out",
	Long: `Record how a decision turned out. An outcome is final once recorded.

Examples:
  ctxlog outcomes record 3f2a... worse --delta "the team was reorganized" --user alice`,
	Args: cobra.ExactArgs(2),
	RunE: runOutcomesRecord,
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List insights learned from outcomes",
	Args:  cobra.NoArgs,
	RunE:  runInsights,
}

func runOutcomesList(cmd *cobra.Command, args []string) error {
	var resp struct {
		Outcomes []journal.OutcomeCheck `json:"outcomes"`
	}
	if err := call(http.MethodGet, "/api/v1/outcomes", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp.Outcomes)
	}
	if len(resp.Outcomes) == 0 {
		fmt.Fprintln(out, "No outcome checks.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECEIPT\tOUTCOME\tSCHEDULED")
	for _, c := range resp.Outcomes {
		outcome := c.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", truncate(c.ReceiptID, 12), outcome, c.ScheduledAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runOutcomesDue(cmd *cobra.Command, args []string) error {
	var resp struct {
		Due *memoryloop.DueCheck `json:"due"`
	}
	if err := call(http.MethodGet, "/api/v1/outcomes/due", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp.Due)
	}
	if resp.Due == nil {
		fmt.Fprintln(out, "Nothing due.")
		return nil
	}
	d := resp.Due
	fmt.Fprintf(out, "%s (%s, %d days ago)\n", d.ReceiptTitle, d.ReceiptDecisionType, d.DaysSince)
	fmt.Fprintf(out, "Receipt: %s\n", d.ReceiptID)
	fmt.Fprintf(out, "How did it turn out? ctxlog outcomes record %s <better|expected|worse|unsure>\n", d.ReceiptID)
	return nil
}

func runOutcomesRecord(cmd *cobra.Command, args []string) error {
	req := map[string]string{
		"receipt_id":       args[0],
		"outcome":          args[1],
		"assumption_delta": outcomeDelta,
	}
	var resp struct {
		Outcome journal.OutcomeCheck `json:"outcome"`
	}
	if err := call(http.MethodPost, "/api/v1/outcomes", req, &resp); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp.Outcome)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s\n", resp.Outcome.Outcome, resp.Outcome.ReceiptID)
	return nil
}

func runInsights(cmd *cobra.Command, args []string) error {
	var resp struct {
		Insights []journal.InsightEvent `json:"insights"`
	}
	if err := call(http.MethodGet, "/api/v1/insights", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp.Insights)
	}
	if len(resp.Insights) == 0 {
		fmt.Fprintln(out, "No insights yet. Record a few outcomes first.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSTRENGTH\tSAMPLES\tMESSAGE")
	for _, in := range resp.Insights {
		fmt.Fprintf(w, "%s\t%.2f\t%d\t%s\n", in.InsightType, in.SignalStrength, in.SampleSize, truncate(in.Message, 70))
	}
	return w.Flush()
}
