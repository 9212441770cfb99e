package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the knowledge base",
		Long: "Rank articles for a query. Uses embedding similarity when vectors " +
			"exist, keyword matching otherwise. Classification flags boost " +
			"articles with matching context. Every search feeds the gap log.",
		Run: runSearch,
	}

	cmd.Flags().String("category", "", "Ticket category context")
	cmd.Flags().String("sub-category", "", "Ticket sub-category context")
	cmd.Flags().String("syndicator", "", "Syndicator context")
	cmd.Flags().String("provider", "", "Provider context")
	cmd.Flags().Bool("expand", false, "Expand the query with synonyms via the reasoning service")

	triageCmd := &cobra.Command{
		Use:   "triage [ticket text]",
		Short: "Classify a ticket and search with the extracted context",
		Long: "Run the reasoning classifier over raw ticket text, then search " +
			"the KB using both the text and the extracted classification.",
		Args: cobra.MinimumNArgs(1),
		Run:  runTriage,
	}
	triageCmd.Flags().Bool("expand", false, "Expand the query with synonyms via the reasoning service")

	RootCmd.AddCommand(cmd, triageCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	subCategory, _ := cmd.Flags().GetString("sub-category")
	syndicator, _ := cmd.Flags().GetString("syndicator")
	provider, _ := cmd.Flags().GetString("provider")
	expand, _ := cmd.Flags().GetBool("expand")
	query := strings.Join(args, " ")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	engine := newEngine(s, expand)
	results, err := engine.Search(cmd.Context(), query, model.Classification{
		Category:    category,
		SubCategory: subCategory,
		Syndicator:  syndicator,
		Provider:    provider,
	})
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}

func runTriage(cmd *cobra.Command, args []string) {
	expand, _ := cmd.Flags().GetBool("expand")
	text := strings.Join(args, " ")

	reasoner := newReasoner()
	if reasoner == nil {
		exitErr("triage", fmt.Errorf("no OpenAI API key configured"))
	}

	cls, err := reasoner.Classify(cmd.Context(), text)
	if err != nil {
		exitErr("classify ticket", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := newEngine(s, expand).Search(cmd.Context(), text, cls)
	if err != nil {
		exitErr("search", err)
	}

	printJSON(struct {
		Classification model.Classification `json:"classification"`
		Results        []model.SearchResult `json:"results"`
	}{cls, results})
}
