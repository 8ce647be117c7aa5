package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recallmem/recall/internal/engine"
	"github.com/recallmem/recall/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Assemble relevant records into a token budget",
		Long: "Rank records relevant to the query and greedily pack them into a token\n" +
			"budget, ready to splice into a prompt. Entries that only partly fit are\n" +
			"truncated and marked.",
		Args: cobra.MinimumNArgs(1),
		Run:  runContext,
	}

	cmd.Flags().IntP("budget", "b", 4000, "Token budget")
	cmd.Flags().StringP("type", "t", "", "Filter by memory type")
	cmd.Flags().StringArrayP("where", "w", nil, "Predicate field:op:value (repeatable)")
	cmd.Flags().StringP("metric", "m", "", "Distance metric: cosine, euclidean, dot")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	memoryType, _ := cmd.Flags().GetString("type")
	clauses, _ := cmd.Flags().GetStringArray("where")
	metric, _ := cmd.Flags().GetString("metric")
	query := strings.Join(args, " ")

	preds, err := parsePredicates(clauses)
	if err != nil {
		exitErr("context", err)
	}
	if memoryType != "" {
		preds = append(preds, model.Predicate{Field: "memory_type", Op: model.OpEq, Value: memoryType})
	}

	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	result, err := e.AssembleContext(cmd.Context(), engine.ContextParams{
		Query:      query,
		Predicates: preds,
		Metric:     model.Metric(metric),
		Budget:     budget,
	})
	if err != nil {
		exitErr("context", err)
	}

	b, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(b))
}
