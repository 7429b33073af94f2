package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brahma2024/agentic-ledger/internal/config"
	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/lexicon"
	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/taxonomy"
)

var (
	flagLexiconCategories string
	flagLexiconRefresh    string
	flagLexiconPhrases    int
)

func init() {
	lexiconCmd.Flags().StringVar(&flagLexiconCategories, "categories",
		"cs.AI,cs.LG,cs.CR,cs.CL,q-fin.TR,q-fin.PM,q-fin.RM",
		"comma-separated arXiv category codes")
	lexiconCmd.Flags().StringVar(&flagLexiconRefresh, "refresh", "", "force regeneration for one category code")
	lexiconCmd.Flags().IntVar(&flagLexiconPhrases, "phrases", 10, "phrases per category in the export")
}

var lexiconCmd = &cobra.Command{
	Use:   "lexicon",
	Short: "Generate news-friendly search phrases per arXiv category",
	Long: "Generate (and cache) LLM-derived search phrases for each arXiv category, " +
		"scored by semantic closeness to the category, and print them as " +
		"Google Alerts queries.",
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
		completer, err := llm.NewClient(llm.Config{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  apiKey,
			Model:   cfg.OpenAI.LLMModel,
		})
		if err != nil {
			return err
		}

		tax := taxonomy.NewManager(taxonomy.Config{
			CacheDir: config.CacheDir(),
			TTLDays:  cfg.Convergence.CacheTTLDays,
		}, embedder)
		gen := lexicon.NewGenerator(lexicon.Config{
			CacheDir: config.CacheDir(),
			TTLDays:  cfg.Convergence.CacheTTLDays,
		}, tax, completer, embedder)

		ctx := cmd.Context()

		if flagLexiconRefresh != "" {
			if _, err := gen.RefreshCategory(ctx, flagLexiconRefresh); err != nil {
				return fmt.Errorf("refreshing %s: %w", flagLexiconRefresh, err)
			}
		}

		codes := splitCodes(flagLexiconCategories)
		for _, code := range codes {
			phrases, err := gen.ExportForGoogleAlerts(ctx, code, flagLexiconPhrases)
			if err != nil {
				return err
			}
			fmt.Println(titleStyle.Render(code))
			if len(phrases) == 0 {
				fmt.Println(labelStyle.Render("  no lexicon for this category"))
				continue
			}
			for _, p := range phrases {
				fmt.Println("  " + p)
			}
			fmt.Println()
		}

		combined, err := gen.CombinedAlertQuery(ctx, codes, 5)
		if err != nil {
			return err
		}
		if combined != "" {
			fmt.Println(labelStyle.Render("Combined alert query:"))
			fmt.Println(combined)
		}
		return nil
	},
}

func splitCodes(s string) []string {
	var codes []string
	for _, part := range strings.Split(s, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}
