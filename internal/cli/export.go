package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all records as JSON",
		Long:  "Export every record as a JSON array, embeddings included, in the format import expects.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	records, err := e.ExportAll(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}
	if len(records) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(records, "", "  ")
	fmt.Println(string(b))
}
