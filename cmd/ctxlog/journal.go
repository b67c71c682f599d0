package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextlog/internal/deadzone"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/reflection"
	"github.com/fyrsmithlabs/contextlog/internal/service"
)

var (
	// log command flags
	logDecisionType string
	logContext      string
	logAssumptions  string
	logEmotions     []string
	logConfidence   int
	logTags         []string
	logCategory     string
	logNote         string

	// reflect command flags
	reflectSave  bool
	reflectNotes string
)

func init() {
	rootCmd.AddCommand(deadzoneCmd)
	rootCmd.AddCommand(cardsCmd)
	cardsCmd.AddCommand(cardsDismissCmd)
	rootCmd.AddCommand(reflectCmd)
	rootCmd.AddCommand(logCmd)
	logCmd.AddCommand(logReceiptCmd)
	logCmd.AddCommand(logMomentCmd)

	logCmd.PersistentFlags().StringSliceVar(&logTags, "tag", nil, "Tag (repeatable)")

	logReceiptCmd.Flags().StringVar(&logDecisionType, "type", journal.DecisionOther, "Decision type")
	logReceiptCmd.Flags().StringVar(&logContext, "context", "", "What was going on")
	logReceiptCmd.Flags().StringVar(&logAssumptions, "assumptions", "", "What you assumed")
	logReceiptCmd.Flags().StringSliceVar(&logEmotions, "emotion", nil, "Emotion (repeatable)")
	logReceiptCmd.Flags().IntVar(&logConfidence, "confidence", -1, "Confidence 0-100")

	logMomentCmd.Flags().StringVar(&logCategory, "category", journal.CategoryOther, "Moment category")
	logMomentCmd.Flags().StringVar(&logNote, "note", "", "Note")

	reflectCmd.Flags().BoolVar(&reflectSave, "save", false, "Save the generated reflection")
	reflectCmd.Flags().StringVar(&reflectNotes, "notes", "", "Notes to store with a saved reflection")
}

var deadzoneCmd = &cobra.Command{
	Use:   "deadzone",
	Short: "Show the dead-zone report",
	Long: `Show the dead-zone report: silence gaps, category lock, tag
repetition and missing decision types over the configured window.

Examples:
  ctxlog deadzone --user alice`,
	Args: cobra.NoArgs,
	RunE: runDeadZone,
}

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List perspective cards",
	Long: `Generate any new perspective cards and list the undismissed ones.

Examples:
  ctxlog cards --user alice
  ctxlog cards dismiss 3f2a... --user alice`,
	Args: cobra.NoArgs,
	RunE: runCards,
}

var cardsDismissCmd = &cobra.Command{
	Use:   "dismiss <card-id>",
	Short: "Dismiss a perspective card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := call(http.MethodPost, "/api/v1/perspective-cards/"+args[0]+"/dismiss", nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dismissed card %s\n", args[0])
		return nil
	},
}

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Show this week's reflection",
	Long: `Show the weekly reflection. A reflection saved in the last seven
days is shown as saved; otherwise a new one is generated.

Examples:
  ctxlog reflect --user alice
  ctxlog reflect --user alice --save --notes "busy week"`,
	Args: cobra.NoArgs,
	RunE: runReflect,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Log a receipt or moment",
}

var logReceiptCmd = &cobra.Command{
	Use:   "receipt <title>",
	Short: "Log a decision receipt",
	Long: `Log a decision receipt.

Examples:
  ctxlog log receipt "Took the Berlin offer" --type Career --confidence 70 --emotion hopeful --user alice`,
	Args: cobra.ExactArgs(1),
	RunE: runLogReceipt,
}

var logMomentCmd = &cobra.Command{
	Use:   "moment <title>",
	Short: "Log a moment",
	Long: `Log a moment worth remembering.

Examples:
  ctxlog log moment "Dinner with Sam" --category People --user alice`,
	Args: cobra.ExactArgs(1),
	RunE: runLogMoment,
}

func runDeadZone(cmd *cobra.Command, args []string) error {
	var result deadzone.Result
	if err := call(http.MethodGet, "/api/v1/deadzone", nil, &result); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, result)
	}

	s := result.Summary
	fmt.Fprintf(out, "Window: %d days, %d receipts, %d moments, %d unique tags\n",
		s.WindowDays, s.TotalReceipts, s.TotalMoments, s.UniqueTags)
	if len(result.Flags) == 0 {
		fmt.Fprintln(out, "No dead zones.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FLAG\tSEVERITY\tMESSAGE")
	for _, f := range result.Flags {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Type, f.Severity, truncate(f.Message, 70))
	}
	return w.Flush()
}

func runCards(cmd *cobra.Command, args []string) error {
	var resp struct {
		Cards []journal.PerspectiveCard `json:"cards"`
	}
	if err := call(http.MethodGet, "/api/v1/perspective-cards", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp.Cards)
	}
	if len(resp.Cards) == 0 {
		fmt.Fprintln(out, "No perspective cards.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tMESSAGE")
	for _, c := range resp.Cards {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", truncate(c.ID, 12), c.Type, truncate(c.Title, 30), truncate(c.Message, 60))
	}
	return w.Flush()
}

func runReflect(cmd *cobra.Command, args []string) error {
	var resp struct {
		Reflection json.RawMessage `json:"reflection"`
		IsNew      bool            `json:"is_new"`
	}
	if err := call(http.MethodGet, "/api/v1/reflections/weekly", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !resp.IsNew {
		var saved journal.SavedReflection
		if err := json.Unmarshal(resp.Reflection, &saved); err != nil {
			return fmt.Errorf("failed to decode reflection: %w", err)
		}
		if outputJSON {
			return printJSON(out, saved)
		}
		fmt.Fprintf(out, "Saved reflection (%s to %s)\n",
			saved.PeriodStart.Format("Jan 2"), saved.PeriodEnd.Format("Jan 2"))
		fmt.Fprintf(out, "Question: %s\n", saved.ReflectionQuestion)
		fmt.Fprintf(out, "Try: %s\n", saved.SuggestedAction)
		return nil
	}

	var generated reflection.WeeklyReflection
	if err := json.Unmarshal(resp.Reflection, &generated); err != nil {
		return fmt.Errorf("failed to decode reflection: %w", err)
	}
	if outputJSON {
		return printJSON(out, generated)
	}
	sum := generated.Summary
	fmt.Fprintf(out, "This week: %d receipts, %d moments\n", sum.ReceiptsCount, sum.MomentsCount)
	if sum.AverageConfidence != nil {
		fmt.Fprintf(out, "Average confidence: %d (%s)\n", *sum.AverageConfidence, sum.ConfidenceTrend.Trend)
	}
	fmt.Fprintf(out, "Question: %s\n", generated.Reflection.Question)
	fmt.Fprintf(out, "Try: %s\n", generated.Reflection.SuggestedAction)

	if !reflectSave {
		return nil
	}
	in, err := service.InputFromReflection(generated)
	if err != nil {
		return err
	}
	in.UserNotes = reflectNotes
	var saved struct {
		Reflection journal.SavedReflection `json:"reflection"`
	}
	if err := call(http.MethodPost, "/api/v1/reflections/weekly", in, &saved); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved reflection %s\n", saved.Reflection.ID)
	return nil
}

func runLogReceipt(cmd *cobra.Command, args []string) error {
	in := service.ReceiptInput{
		Title:        args[0],
		DecisionType: logDecisionType,
		Context:      logContext,
		Assumptions:  logAssumptions,
		Emotions:     logEmotions,
		Tags:         logTags,
	}
	if logConfidence >= 0 {
		in.Confidence = journal.Intn(logConfidence)
	}
	var resp struct {
		Receipt journal.Receipt `json:"receipt"`
	}
	if err := call(http.MethodPost, "/api/v1/receipts", in, &resp); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp.Receipt)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged receipt %s\n", resp.Receipt.ID)
	return nil
}

func runLogMoment(cmd *cobra.Command, args []string) error {
	in := service.MomentInput{
		Title:    args[0],
		Category: logCategory,
		Note:     logNote,
		Tags:     logTags,
	}
	var resp struct {
		Moment journal.Moment `json:"moment"`
	}
	if err := call(http.MethodPost, "/api/v1/moments", in, &resp); err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd.OutOrStdout(), resp.Moment)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged moment %s\n", resp.Moment.ID)
	return nil
}
