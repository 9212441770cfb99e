package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/model"
	"github.com/rcliao/support-kb/internal/store"
)

func init() {
	articleCmd := &cobra.Command{
		Use:   "article",
		Short: "Manage knowledge base articles",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create an article",
		Run:   runArticleAdd,
	}
	addCmd.Flags().StringP("title", "t", "", "Article title (required)")
	addCmd.Flags().String("problem", "", "Problem description")
	addCmd.Flags().String("solution", "", "Solution text")
	addCmd.Flags().String("steps", "", "Comma-separated resolution steps")
	addCmd.Flags().String("tags", "", "Comma-separated tags")
	addCmd.Flags().String("category", "", "Category")
	addCmd.Flags().String("sub-category", "", "Sub-category")
	addCmd.Flags().String("syndicator", "", "Syndicator")
	addCmd.Flags().String("provider", "", "Provider")
	addCmd.MarkFlagRequired("title")

	getCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show an article with its version history",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleGet,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List articles",
		Run:   runArticleList,
	}
	listCmd.Flags().String("category", "", "Filter by category")
	listCmd.Flags().String("sub-category", "", "Filter by sub-category")
	listCmd.Flags().String("tag", "", "Filter by tag")
	listCmd.Flags().IntP("limit", "l", 0, "Max results (0 = all)")

	updateCmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Update an article (snapshots the previous version)",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleUpdate,
	}
	updateCmd.Flags().StringP("title", "t", "", "New title")
	updateCmd.Flags().String("problem", "", "New problem description")
	updateCmd.Flags().String("solution", "", "New solution text")
	updateCmd.Flags().String("steps", "", "New comma-separated steps")
	updateCmd.Flags().String("tags", "", "New comma-separated tags")
	updateCmd.Flags().String("category", "", "New category")
	updateCmd.Flags().String("sub-category", "", "New sub-category")
	updateCmd.Flags().String("syndicator", "", "New syndicator")
	updateCmd.Flags().String("provider", "", "New provider")
	updateCmd.Flags().StringP("reason", "r", "manual update", "Change reason recorded in the version history")

	rollbackCmd := &cobra.Command{
		Use:   "rollback [id] [version]",
		Short: "Restore an article's content from an earlier version",
		Long:  "Restore content from a snapshot. The rollback itself is versioned: the pre-rollback state is snapshotted first.",
		Args:  cobra.ExactArgs(2),
		Run:   runArticleRollback,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete an article and its history",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleRm,
	}

	voteCmd := &cobra.Command{
		Use:   "vote [id] [up|down]",
		Short: "Vote on an article's usefulness",
		Args:  cobra.ExactArgs(2),
		Run:   runArticleVote,
	}

	useCmd := &cobra.Command{
		Use:   "use [id]",
		Short: "Record that an article was used on a ticket",
		Run:   runArticleUse,
	}
	useCmd.Flags().Bool("failed", false, "The article did not resolve the ticket")
	useCmd.Args = cobra.ExactArgs(1)

	edgeCaseCmd := &cobra.Command{
		Use:   "edge-case [id]",
		Short: "Attach an edge case note to an article",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleEdgeCase,
	}
	edgeCaseCmd.Flags().StringP("scenario", "s", "", "What situation triggers the edge case (required)")
	edgeCaseCmd.Flags().String("note", "", "What to do about it")
	edgeCaseCmd.Flags().String("by", "", "Who reported it")
	edgeCaseCmd.MarkFlagRequired("scenario")

	exampleCmd := &cobra.Command{
		Use:   "example [id]",
		Short: "Attach a resolved ticket as an example",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleExample,
	}
	exampleCmd.Flags().String("ticket", "", "Ticket id")
	exampleCmd.Flags().String("summary", "", "What the ticket was about (required)")
	exampleCmd.Flags().String("resolution", "", "What actually fixed it")
	exampleCmd.Flags().Bool("failed", false, "The article's solution did not work")
	exampleCmd.MarkFlagRequired("summary")

	historyCmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show an article's version history, newest first",
		Args:  cobra.ExactArgs(1),
		Run:   runArticleHistory,
	}

	articleCmd.AddCommand(addCmd, getCmd, listCmd, updateCmd, rollbackCmd,
		rmCmd, voteCmd, useCmd, edgeCaseCmd, exampleCmd, historyCmd)
	RootCmd.AddCommand(articleCmd)
}

func runArticleAdd(cmd *cobra.Command, args []string) {
	title, _ := cmd.Flags().GetString("title")
	problem, _ := cmd.Flags().GetString("problem")
	solution, _ := cmd.Flags().GetString("solution")
	steps, _ := cmd.Flags().GetString("steps")
	tags, _ := cmd.Flags().GetString("tags")
	category, _ := cmd.Flags().GetString("category")
	subCategory, _ := cmd.Flags().GetString("sub-category")
	syndicator, _ := cmd.Flags().GetString("syndicator")
	provider, _ := cmd.Flags().GetString("provider")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	article := &model.Article{
		Title:       title,
		Problem:     problem,
		Solution:    solution,
		Steps:       splitCSV(steps),
		Tags:        splitCSV(tags),
		Category:    category,
		SubCategory: subCategory,
		Syndicator:  syndicator,
		Provider:    provider,
	}
	id, err := s.CreateArticle(cmd.Context(), article)
	if err != nil {
		exitErr("add article", err)
	}
	audit(cmd.Context(), s, model.AuditCreate, &id, map[string]string{"title": title})

	printJSON(article)
}

func runArticleGet(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	article, err := s.GetArticle(cmd.Context(), id)
	if err != nil {
		exitErr("get article", err)
	}
	printJSON(article)
}

func runArticleList(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	subCategory, _ := cmd.Flags().GetString("sub-category")
	tag, _ := cmd.Flags().GetString("tag")
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	articles, err := s.ListArticles(cmd.Context(), store.ListArticlesParams{
		Category:    category,
		SubCategory: subCategory,
		Tag:         tag,
		Limit:       limit,
	})
	if err != nil {
		exitErr("list articles", err)
	}
	if len(articles) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(articles)
}

func runArticleUpdate(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	reason, _ := cmd.Flags().GetString("reason")

	var update model.ArticleUpdate
	if cmd.Flags().Changed("title") {
		v, _ := cmd.Flags().GetString("title")
		update.Title = &v
	}
	if cmd.Flags().Changed("problem") {
		v, _ := cmd.Flags().GetString("problem")
		update.Problem = &v
	}
	if cmd.Flags().Changed("solution") {
		v, _ := cmd.Flags().GetString("solution")
		update.Solution = &v
	}
	if cmd.Flags().Changed("steps") {
		v, _ := cmd.Flags().GetString("steps")
		steps := splitCSV(v)
		update.Steps = &steps
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		tags := splitCSV(v)
		update.Tags = &tags
	}
	if cmd.Flags().Changed("category") {
		v, _ := cmd.Flags().GetString("category")
		update.Category = &v
	}
	if cmd.Flags().Changed("sub-category") {
		v, _ := cmd.Flags().GetString("sub-category")
		update.SubCategory = &v
	}
	if cmd.Flags().Changed("syndicator") {
		v, _ := cmd.Flags().GetString("syndicator")
		update.Syndicator = &v
	}
	if cmd.Flags().Changed("provider") {
		v, _ := cmd.Flags().GetString("provider")
		update.Provider = &v
	}
	if update.Empty() {
		exitErr("update article", fmt.Errorf("nothing to change"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.UpdateArticle(cmd.Context(), id, update, reason); err != nil {
		exitErr("update article", err)
	}
	audit(cmd.Context(), s, model.AuditUpdate, &id, map[string]string{"reason": reason})

	article, err := s.GetArticle(cmd.Context(), id)
	if err != nil {
		exitErr("get article", err)
	}
	printJSON(article)
}

func runArticleRollback(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	version := parseID(args[1])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.RollbackArticle(cmd.Context(), id, version); err != nil {
		exitErr("rollback article", err)
	}
	audit(cmd.Context(), s, model.AuditRollback, &id,
		map[string]string{"target_version": strconv.Itoa(version)})

	article, err := s.GetArticle(cmd.Context(), id)
	if err != nil {
		exitErr("get article", err)
	}
	printJSON(article)
}

func runArticleRm(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.DeleteArticle(cmd.Context(), id); err != nil {
		exitErr("delete article", err)
	}
	audit(cmd.Context(), s, model.AuditDelete, &id, nil)

	fmt.Printf(`{"ok":true,"deleted":%d}`+"\n", id)
}

func runArticleVote(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	direction := args[1]

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.VoteArticle(cmd.Context(), id, direction); err != nil {
		exitErr("vote", err)
	}
	article, err := s.GetArticle(cmd.Context(), id)
	if err != nil {
		exitErr("get article", err)
	}
	fmt.Printf(`{"ok":true,"id":%d,"vote_score":%d}`+"\n", id, article.VoteScore)
}

func runArticleUse(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	failed, _ := cmd.Flags().GetBool("failed")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	if err := s.RecordUsage(cmd.Context(), id, !failed); err != nil {
		exitErr("record usage", err)
	}
	article, err := s.GetArticle(cmd.Context(), id)
	if err != nil {
		exitErr("get article", err)
	}
	fmt.Printf(`{"ok":true,"id":%d,"usage_count":%d,"success_rate":%.2f}`+"\n",
		id, article.UsageCount, article.SuccessRate)
}

func runArticleEdgeCase(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	scenario, _ := cmd.Flags().GetString("scenario")
	note, _ := cmd.Flags().GetString("note")
	by, _ := cmd.Flags().GetString("by")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	ec := model.EdgeCase{Scenario: scenario, Note: note, ReportedBy: by}
	if err := s.AddEdgeCase(cmd.Context(), id, ec); err != nil {
		exitErr("add edge case", err)
	}
	audit(cmd.Context(), s, model.AuditEdgeCase, &id, map[string]string{"scenario": scenario})

	fmt.Printf(`{"ok":true,"id":%d}`+"\n", id)
}

func runArticleExample(cmd *cobra.Command, args []string) {
	id := parseID(args[0])
	ticket, _ := cmd.Flags().GetString("ticket")
	summary, _ := cmd.Flags().GetString("summary")
	resolution, _ := cmd.Flags().GetString("resolution")
	failed, _ := cmd.Flags().GetBool("failed")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	et := model.ExampleTicket{
		TicketID:         ticket,
		Summary:          summary,
		ResolutionWorked: !failed,
		ActualResolution: resolution,
	}
	if err := s.AddExampleTicket(cmd.Context(), id, et); err != nil {
		exitErr("add example ticket", err)
	}
	fmt.Printf(`{"ok":true,"id":%d}`+"\n", id)
}

func runArticleHistory(cmd *cobra.Command, args []string) {
	id := parseID(args[0])

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	history, err := s.VersionHistory(cmd.Context(), id)
	if err != nil {
		exitErr("version history", err)
	}
	if len(history) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(history)
}

func parseID(arg string) int {
	id, err := strconv.Atoi(arg)
	if err != nil {
		exitErr("parse id", fmt.Errorf("%q is not a number", arg))
	}
	return id
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
