package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/recallmem/recall/internal/chunker"
	"github.com/recallmem/recall/internal/engine"
	"github.com/recallmem/recall/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import records from JSON, or split a document into facts",
		Long: "Without --split, reads a JSON array in the format produced by export and\n" +
			"restores the records; records missing an embedding are re-embedded. With\n" +
			"--split, reads a plain-text document, divides it into facts on heading and\n" +
			"paragraph boundaries, and inserts each fact as its own record.",
		Args: cobra.MaximumNArgs(1),
		Run:  runImport,
	}

	cmd.Flags().Bool("split", false, "Treat input as a document and split it into facts")
	cmd.Flags().StringP("type", "t", "", "Memory type for split facts (default 'fact')")
	cmd.Flags().StringToStringP("attr", "a", nil, "Attributes for split facts as key=value (repeatable)")
	cmd.Flags().Int("target-size", chunker.DefaultTargetSize, "Preferred fact size in bytes when splitting")
	cmd.Flags().Int("max-size", chunker.DefaultMaxSize, "Hard fact size ceiling in bytes when splitting")

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := readInput(args)
	if err != nil {
		exitErr("read input", err)
	}

	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	split, _ := cmd.Flags().GetBool("split")
	if split {
		runImportSplit(cmd, e, string(data))
		return
	}

	var records []model.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	for _, rec := range records {
		if err := e.Import(cmd.Context(), rec); err != nil {
			exitErr(fmt.Sprintf("import %s", rec.ID), err)
		}
	}
	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", len(records))
}

func runImportSplit(cmd *cobra.Command, e *engine.Engine, doc string) {
	memoryType, _ := cmd.Flags().GetString("type")
	rawAttrs, _ := cmd.Flags().GetStringToString("attr")
	targetSize, _ := cmd.Flags().GetInt("target-size")
	maxSize, _ := cmd.Flags().GetInt("max-size")

	// The splitter must never emit a fact the embedder would reject.
	if limit := e.Embedder().MaxInputLen(); limit > 0 && limit < maxSize {
		maxSize = limit
		if targetSize > maxSize {
			targetSize = maxSize
		}
	}

	facts := chunker.Split(doc, chunker.Options{TargetSize: targetSize, MaxSize: maxSize})
	if len(facts) == 0 {
		exitErr("split", fmt.Errorf("document is empty"))
	}

	for _, f := range facts {
		attrs := coerceAttrs(rawAttrs)
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["source_start_line"] = f.StartLine
		attrs["source_end_line"] = f.EndLine

		if _, err := e.Insert(cmd.Context(), engine.InsertParams{
			Text:       f.Text,
			MemoryType: memoryType,
			Attributes: attrs,
		}); err != nil {
			exitErr(fmt.Sprintf("insert fact at line %d", f.StartLine), err)
		}
	}
	fmt.Printf(`{"ok":true,"inserted":%d}`+"\n", len(facts))
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}
