package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the change ledger",
	}

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recent KB changes, newest first",
		Run:   runAuditRecent,
	}
	recentCmd.Flags().IntP("limit", "l", 50, "Max entries")

	articleCmd := &cobra.Command{
		Use:   "article [id]",
		Short: "Show every change to one article",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditArticle,
	}

	userCmd := &cobra.Command{
		Use:   "user [name]",
		Short: "Show every change made by one user",
		Args:  cobra.ExactArgs(1),
		Run:   runAuditUser,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the ledger",
		Run:   runAuditStats,
	}

	auditCmd.AddCommand(recentCmd, articleCmd, userCmd, statsCmd)
	RootCmd.AddCommand(auditCmd)
}

func runAuditRecent(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.RecentActions(cmd.Context(), limit)
	if err != nil {
		exitErr("audit recent", err)
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(entries)
}

func runAuditArticle(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.ArticleAuditHistory(cmd.Context(), id)
	if err != nil {
		exitErr("audit article", err)
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(entries)
}

func runAuditUser(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	entries, err := s.UserActions(cmd.Context(), args[0])
	if err != nil {
		exitErr("audit user", err)
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(entries)
}

func runAuditStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.AuditStats(cmd.Context())
	if err != nil {
		exitErr("audit stats", err)
	}
	printJSON(stats)
}
