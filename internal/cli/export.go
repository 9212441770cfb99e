package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export articles as JSON",
		Long:  "Export every article with full version history. Pipe to a file for backups.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	articles, err := s.ExportArticles(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}
	printJSON(articles)
}
