package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recallmem/recall/internal/model"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the records most similar to a query",
		Long: "Embed the query and return the k most similar records. Predicates\n" +
			"restrict candidates before ranking: --type filters memory_type, --where\n" +
			"takes field:op:value clauses (ops: eq, ne, gt, gte, lt, lte).",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().IntP("k", "k", 0, "Max results (default from config)")
	cmd.Flags().StringP("type", "t", "", "Filter by memory type")
	cmd.Flags().StringArrayP("where", "w", nil, "Predicate field:op:value (repeatable)")
	cmd.Flags().StringP("metric", "m", "", "Distance metric: cosine, euclidean, dot")
	cmd.Flags().Float64("max-distance", 0, "Drop matches farther than this distance")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	k, _ := cmd.Flags().GetInt("k")
	memoryType, _ := cmd.Flags().GetString("type")
	clauses, _ := cmd.Flags().GetStringArray("where")
	metric, _ := cmd.Flags().GetString("metric")
	query := strings.Join(args, " ")

	preds, err := parsePredicates(clauses)
	if err != nil {
		exitErr("search", err)
	}
	if memoryType != "" {
		preds = append(preds, model.Predicate{Field: "memory_type", Op: model.OpEq, Value: memoryType})
	}

	opts := model.SearchOptions{
		Predicates: preds,
		K:          k,
		Metric:     model.Metric(metric),
	}
	if cmd.Flags().Changed("max-distance") {
		maxDist, _ := cmd.Flags().GetFloat64("max-distance")
		opts.MaxDistance = &maxDist
	}

	e, closeStore, err := openEngine(cmd.Context())
	if err != nil {
		exitErr("open store", err)
	}
	defer closeStore()

	results, err := e.Search(cmd.Context(), query, opts)
	if err != nil {
		exitErr("search", err)
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	// Raw vectors drown the output; export is the command that carries them.
	for i := range results {
		results[i].Record.Embedding = nil
	}

	b, _ := json.MarshalIndent(results, "", "  ")
	fmt.Println(string(b))
}
