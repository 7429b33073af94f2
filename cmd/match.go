package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brahma2024/agentic-ledger/internal/config"
	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/taxonomy"
)

var flagMatchTop int

func init() {
	matchCmd.Flags().IntVar(&flagMatchTop, "top", 5, "number of categories to show")
}

var matchCmd = &cobra.Command{
	Use:   "match <text>",
	Short: "Show which arXiv categories a text matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagDebug {
			os.Setenv("LOG_LEVEL", "debug")
		}
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		apiKey := config.APIKey()
		if apiKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is not set (environment or .env)")
		}

		embedder, err := embedding.NewClient(embedding.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  apiKey,
			Model:   cfg.OpenAI.EmbeddingModel,
		})
		if err != nil {
			return err
		}
		tax := taxonomy.NewManager(taxonomy.Config{
			CacheDir: config.CacheDir(),
			TTLDays:  cfg.Convergence.CacheTTLDays,
		}, embedder)

		text := strings.Join(args, " ")
		matches := tax.FindMatching(cmd.Context(), text, flagMatchTop, cfg.Convergence.MinSimilarity)
		if len(matches) == 0 {
			fmt.Println("No matching categories.")
			return nil
		}

		for _, match := range matches {
			fmt.Printf("%s %-38s %s\n",
				titleStyle.Render(fmt.Sprintf("%-10s", match.Category.Code)),
				match.Category.Name,
				scoreStyle.Render(fmt.Sprintf("%.3f", match.Similarity)))
		}
		return nil
	},
}
