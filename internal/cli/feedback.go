package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

func init() {
	feedbackCmd := &cobra.Command{
		Use:   "feedback",
		Short: "Agent feedback review queue",
		Long: "Agents report how a resolution went; a reviewer applies or " +
			"dismisses the resulting recommendation. Articles only change " +
			"through apply.",
	}

	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue feedback about a ticket resolution",
		Run:   runFeedbackSubmit,
	}
	submitCmd.Flags().String("ticket", "", "Ticket id")
	submitCmd.Flags().String("subject", "", "Ticket subject")
	submitCmd.Flags().String("text", "", "Ticket text (required)")
	submitCmd.Flags().String("category", "", "Ticket category")
	submitCmd.Flags().String("sub-category", "", "Ticket sub-category")
	submitCmd.Flags().String("syndicator", "", "Syndicator")
	submitCmd.Flags().String("provider", "", "Provider")
	submitCmd.Flags().String("solution", "", "What actually resolved the ticket (required)")
	submitCmd.Flags().String("edge-case", "", "Edge case encountered, if any")
	submitCmd.Flags().String("agent", "", "Reporting agent's name")
	submitCmd.Flags().IntP("article", "a", 0, "Id of the KB article that was matched, if any")
	submitCmd.Flags().Bool("failed", false, "The matched article's solution did not work")
	submitCmd.MarkFlagRequired("text")
	submitCmd.MarkFlagRequired("solution")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List feedback items",
		Run:   runFeedbackList,
	}
	listCmd.Flags().StringP("status", "s", "", "Filter by status: pending, applied, dismissed")
	listCmd.Flags().IntP("article", "a", 0, "Filter by matched article id")
	listCmd.Flags().IntP("limit", "l", 0, "Max results (0 = all)")

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a feedback item",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackShow,
	}

	recommendCmd := &cobra.Command{
		Use:   "recommend [id]",
		Short: "Ask the reasoning service what this feedback should change",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackRecommend,
	}

	applyCmd := &cobra.Command{
		Use:   "apply [id]",
		Short: "Execute a feedback item's recommendation against the KB",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackApply,
	}

	dismissCmd := &cobra.Command{
		Use:   "dismiss [id]",
		Short: "Settle a feedback item without changing the KB",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackDismiss,
	}
	dismissCmd.Flags().StringP("reason", "r", "", "Why the recommendation was rejected")

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a feedback item",
		Args:  cobra.ExactArgs(1),
		Run:   runFeedbackRm,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the feedback queue",
		Run:   runFeedbackStats,
	}

	feedbackCmd.AddCommand(submitCmd, listCmd, showCmd, recommendCmd,
		applyCmd, dismissCmd, rmCmd, statsCmd)
	RootCmd.AddCommand(feedbackCmd)
}

func runFeedbackSubmit(cmd *cobra.Command, args []string) {
	ticket, _ := cmd.Flags().GetString("ticket")
	subject, _ := cmd.Flags().GetString("subject")
	text, _ := cmd.Flags().GetString("text")
	category, _ := cmd.Flags().GetString("category")
	subCategory, _ := cmd.Flags().GetString("sub-category")
	syndicator, _ := cmd.Flags().GetString("syndicator")
	provider, _ := cmd.Flags().GetString("provider")
	solution, _ := cmd.Flags().GetString("solution")
	edgeCase, _ := cmd.Flags().GetString("edge-case")
	agent, _ := cmd.Flags().GetString("agent")
	articleID, _ := cmd.Flags().GetInt("article")
	failed, _ := cmd.Flags().GetBool("failed")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := store.AddFeedbackParams{
		TicketData: model.TicketData{
			TicketID:    ticket,
			Subject:     subject,
			Text:        text,
			Category:    category,
			SubCategory: subCategory,
			Syndicator:  syndicator,
			Provider:    provider,
		},
		AgentFeedback: model.AgentFeedback{
			ActualSolution: solution,
			EdgeCase:       edgeCase,
			AgentName:      agent,
		},
		ResolutionWorked: !failed,
	}
	if articleID > 0 {
		p.MatchedArticleID = &articleID
	}

	id, err := newWorkflow(s).Submit(cmd.Context(), p)
	if err != nil {
		exitErr("submit feedback", err)
	}
	fmt.Printf(`{"ok":true,"id":%d,"status":%q}`+"\n", id, model.StatusPending)
}

func runFeedbackList(cmd *cobra.Command, args []string) {
	status, _ := cmd.Flags().GetString("status")
	articleID, _ := cmd.Flags().GetInt("article")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p := store.ListFeedbackParams{Status: status, Limit: limit}
	if articleID > 0 {
		p.ArticleID = &articleID
	}
	items, err := s.ListFeedback(cmd.Context(), p)
	if err != nil {
		exitErr("list feedback", err)
	}
	if len(items) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(items)
}

func runFeedbackShow(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	item, err := s.GetFeedback(cmd.Context(), id)
	if err != nil {
		exitErr("show feedback", err)
	}
	printJSON(item)
}

func runFeedbackRecommend(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	rec, err := newWorkflow(s).Recommend(cmd.Context(), id)
	if err != nil {
		exitErr("recommend", err)
	}
	printJSON(rec)
}

func runFeedbackApply(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	outcome, err := newWorkflow(s).Apply(cmd.Context(), id, loadConfig().User)
	if err != nil {
		exitErr("apply feedback", err)
	}
	printJSON(outcome)
}

func runFeedbackDismiss(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	reason, _ := cmd.Flags().GetString("reason")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := newWorkflow(s).Dismiss(cmd.Context(), id, reason); err != nil {
		exitErr("dismiss feedback", err)
	}
	fmt.Printf(`{"ok":true,"id":%d,"status":%q}`+"\n", id, model.StatusDismissed)
}

func runFeedbackRm(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteFeedback(cmd.Context(), id); err != nil {
		exitErr("delete feedback", err)
	}
	fmt.Printf(`{"ok":true,"deleted":%d}`+"\n", id)
}

func runFeedbackStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.FeedbackStats(cmd.Context())
	if err != nil {
		exitErr("feedback stats", err)
	}
	printJSON(stats)
}
