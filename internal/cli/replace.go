package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recallmem/recall/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "replace [id] [text]",
		Short: "Correct a record",
		Long: "Store corrected text as a new record, then delete the original. The two\n" +
			"steps are not atomic; if the delete fails the new record stays and the\n" +
			"command reports the leftover id. Type and attributes carry over unless\n" +
			"overridden.",
		Args: cobra.MinimumNArgs(2),
		Run:  runReplace,
	}

	cmd.Flags().StringP("type", "t", "", "Override memory type")
	cmd.Flags().StringToStringP("attr", "a", nil, "Override attributes as key=value (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runReplace(cmd *cobra.Command, args []string) {
	memoryType, _ := cmd.Flags().GetString("type")
	attrs, _ := cmd.Flags().GetStringToString("attr")

	id := args[0]
	text := strings.Join(args[1:], " ")

	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	rec, err := e.Replace(cmd.Context(), id, engine.InsertParams{
		Text:       text,
		MemoryType: memoryType,
		Attributes: coerceAttrs(attrs),
	})
	if err != nil {
		if rec != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: replacement %s stored but original %s not deleted: %v\n", rec.ID, id, err)
		} else {
			exitErr("replace", err)
		}
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
