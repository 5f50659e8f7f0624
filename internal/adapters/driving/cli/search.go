package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northwind-labs/atlas/internal/core/domain"
)

var (
	searchCategory string
	searchLimit    int
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Performs hybrid search across the indexed corpus.
Combines semantic (vector) and keyword (BM25) candidates via reciprocal
rank fusion, optionally refined by the rerank service.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "restrict to one corpus category")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	if searchCategory != "" && !domain.ValidCategory(searchCategory) {
		return fmt.Errorf("unknown category %q (valid: %v)", searchCategory, domain.Categories)
	}

	engine, _, closer, err := buildRetrieval()
	if err != nil {
		return err
	}
	defer closer()

	opts := retrievalOptions()
	opts.Category = searchCategory
	if searchLimit > 0 {
		opts.FinalLimit = searchLimit
	}

	results, err := engine.Search(cmd.Context(), query, opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputSearchJSON(cmd, results)
	}
	return outputSearchTable(cmd, results)
}

func outputSearchJSON(cmd *cobra.Command, results []domain.RetrievalResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchTable(cmd *cobra.Command, results []domain.RetrievalResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		chunk := results[i].Chunk
		cmd.Printf("  [%d] %s (%.4f)\n", i+1, chunk.DocumentName, results[i].Score)
		if chunk.SectionHeader != "" {
			cmd.Printf("      Section: %s\n", chunk.SectionHeader)
		}
		if chunk.LastUpdated != "" {
			cmd.Printf("      Updated: %s\n", chunk.LastUpdated)
		}
		cmd.Printf("      %s\n", snippet(chunk.RetrievalText, 200))
		cmd.Println()
	}

	return nil
}

// snippet truncates text for terminal display.
func snippet(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
