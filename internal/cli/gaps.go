package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	gapsCmd := &cobra.Command{
		Use:   "gaps",
		Short: "Knowledge gap analysis from the search log",
		Long: "Searches that found nothing are knowledge gaps. Repeated gaps " +
			"are articles someone should write.",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show gaps grouped by query, most frequent first",
		Run:   runGapsList,
	}
	listCmd.Flags().Int("days", 30, "Look-back window in days")

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "Show raw failed searches, newest first",
		Run:   runGapsFailed,
	}
	failedCmd.Flags().Int("days", 30, "Look-back window in days")

	topCmd := &cobra.Command{
		Use:   "top",
		Short: "Show the most searched topics",
		Run:   runGapsTop,
	}
	topCmd.Flags().Int("days", 30, "Look-back window in days")
	topCmd.Flags().IntP("limit", "l", 10, "Max topics")

	analyticsCmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize search activity: volume, hit rate, top gaps",
		Run:   runGapsAnalytics,
	}
	analyticsCmd.Flags().Int("days", 30, "Look-back window in days")

	trendsCmd := &cobra.Command{
		Use:   "trends",
		Short: "Show daily search volume and hit rate",
		Run:   runGapsTrends,
	}
	trendsCmd.Flags().Int("days", 30, "Look-back window in days")

	gapsCmd.AddCommand(listCmd, failedCmd, topCmd, analyticsCmd, trendsCmd)
	RootCmd.AddCommand(gapsCmd)
}

func runGapsList(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	gaps, err := s.KnowledgeGaps(cmd.Context(), days)
	if err != nil {
		exitErr("knowledge gaps", err)
	}
	if len(gaps) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(gaps)
}

func runGapsFailed(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.FailedSearches(cmd.Context(), days)
	if err != nil {
		exitErr("failed searches", err)
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(entries)
}

func runGapsTop(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	topics, err := s.MostSearched(cmd.Context(), days, limit)
	if err != nil {
		exitErr("most searched", err)
	}
	if len(topics) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(topics)
}

func runGapsAnalytics(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	analytics, err := s.SearchAnalytics(cmd.Context(), days)
	if err != nil {
		exitErr("search analytics", err)
	}
	printJSON(analytics)
}

func runGapsTrends(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	trends, err := s.SearchTrends(cmd.Context(), days)
	if err != nil {
		exitErr("search trends", err)
	}
	printJSON(trends)
}
