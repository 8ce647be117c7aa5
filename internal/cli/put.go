package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/recallmem/recall/internal/engine"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [text]",
		Short: "Store a memory record",
		Long:  "Store a memory record. Text can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().StringP("type", "t", "", "Memory type tag (default 'fact')")
	cmd.Flags().StringToStringP("attr", "a", nil, "Attribute as key=value (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	memoryType, _ := cmd.Flags().GetString("type")
	attrs, _ := cmd.Flags().GetStringToString("attr")

	var text string
	if len(args) > 0 {
		text = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			text = string(b)
		}
	}
	if strings.TrimSpace(text) == "" {
		exitErr("put", fmt.Errorf("text is required (positional arg or stdin)"))
	}

	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	rec, err := e.Insert(cmd.Context(), engine.InsertParams{
		Text:       strings.TrimSpace(text),
		MemoryType: memoryType,
		Attributes: coerceAttrs(attrs),
	})
	if err != nil {
		exitErr("put", err)
	}

	b, _ := json.Marshal(rec)
	fmt.Println(string(b))
}
