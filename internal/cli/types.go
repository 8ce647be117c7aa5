package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List memory types with record counts",
		Run:   runTypes,
	}

	RootCmd.AddCommand(cmd)
}

func runTypes(cmd *cobra.Command, args []string) {
	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	types, err := e.Types(cmd.Context())
	if err != nil {
		exitErr("types", err)
	}
	if len(types) == 0 {
		fmt.Println("[]")
		return
	}

	b, _ := json.MarshalIndent(types, "", "  ")
	fmt.Println(string(b))
}
