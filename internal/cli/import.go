package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/support-kb/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import articles from JSON",
		Long: "Import articles from stdin in the format produced by export. " +
			"Imported articles get fresh ids, version 1, and zeroed counters.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var articles []*model.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		exitErr("parse json", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, err := s.ImportArticles(cmd.Context(), articles)
	if err != nil {
		exitErr("import", err)
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}
