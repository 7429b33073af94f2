package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brahma2024/agentic-ledger/internal/arxiv"
	"github.com/brahma2024/agentic-ledger/internal/browser"
	"github.com/brahma2024/agentic-ledger/internal/config"
	"github.com/brahma2024/agentic-ledger/internal/convergence"
	"github.com/brahma2024/agentic-ledger/internal/embedding"
	"github.com/brahma2024/agentic-ledger/internal/feed"
	"github.com/brahma2024/agentic-ledger/internal/llm"
	"github.com/brahma2024/agentic-ledger/internal/logger"
	"github.com/brahma2024/agentic-ledger/internal/news"
	"github.com/brahma2024/agentic-ledger/internal/ranker"
	"github.com/brahma2024/agentic-ledger/internal/store"
	"github.com/brahma2024/agentic-ledger/internal/taxonomy"
)

var (
	flagRefresh bool
	flagOpen    bool
)

func init() {
	rootCmd.Flags().BoolVar(&flagRefresh, "refresh", false, "force refresh feeds before analyzing")
	rootCmd.Flags().BoolVar(&flagOpen, "open", false, "open the selected paper (or story) in the browser")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if flagDebug {
		os.Setenv("LOG_LEVEL", "debug")
	}
	log := logger.New("pipeline")

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

	db, err := store.Open(config.DBPath())
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()

	// Phase 1: the sieve. Fetch bundled news, or reuse the stored batch when
	// it is fresh enough.
	bundles := feed.NewBundleManager(cfg.RSS.Bundles)
	bundled := loadBundledItems(ctx, cfg, bundles, db, log)
	if len(bundled) == 0 {
		return fmt.Errorf("no news items found after Alert and Google News fallback")
	}

	hintsByKey := make(map[string][]string, len(bundled))
	rawItems := make([]news.Item, 0, len(bundled))
	for _, bi := range bundled {
		rawItems = append(rawItems, bi.Item)
		hintsByKey[bi.Item.Key()] = bi.ArxivCodes
	}

	topN := cfg.Convergence.TopNNews
	if !cfg.Convergence.Enabled {
		topN = 1
	}
	ranked := ranker.New(completer).Rank(ctx, rawItems, topN)
	if len(ranked) == 0 {
		return fmt.Errorf("failed to rank news items")
	}
	log.Info("top story", "score", ranked[0].Score, "title", ranked[0].Item.Title)

	if !cfg.Convergence.Enabled {
		fmt.Println(renderRanked(ranked[0]))
		return nil
	}

	// Phase 2: the convergence engine.
	tax := taxonomy.NewManager(taxonomy.Config{
		CacheDir: config.CacheDir(),
		TTLDays:  cfg.Convergence.CacheTTLDays,
	}, embedder)
	papers := arxiv.NewClient(arxiv.Config{
		BaseURL:      cfg.Arxiv.BaseURL,
		MaxResults:   cfg.Convergence.PapersPerCategory,
		LookbackDays: cfg.Arxiv.LookbackDays,
		Completer:    completer,
	})
	engine := convergence.NewEngine(convergence.Config{
		CategoriesPerItem: cfg.Convergence.CategoriesPerNews,
		MinSimilarity:     cfg.Convergence.MinSimilarity,
		MinRelevance:      cfg.Convergence.MinRelevance,
		Weight:            cfg.Convergence.Weight,
		SnapshotPath:      cfg.SnapshotPath(),
	}, tax, papers, embedder)

	best, all, err := engine.SelectBest(ctx, ranked, func(item news.Item) []string {
		return hintsByKey[item.Key()]
	})
	if err != nil {
		return fmt.Errorf("convergence analysis: %w", err)
	}

	if best.Best != nil {
		best.Best.Paper.KeyFinding = papers.ExtractKeyFinding(ctx, best.Best.Paper)
	}

	run := store.Run{
		ID:               uuid.NewString(),
		SelectedTitle:    best.Item.Item.Title,
		ConvergenceScore: best.ConvergenceScore,
		CombinedScore:    best.CombinedScore,
		GeneratedAt:      time.Now(),
	}
	if best.Best != nil {
		run.SelectedPaperID = best.Best.Paper.ArxivID
	}
	if err := db.RecordRun(run); err != nil {
		log.Warn("failed to record run", "error", err)
	}

	fmt.Println(renderResult(best, all, cfg.SnapshotPath()))

	if flagOpen {
		target := best.Item.Item.URL
		if best.Best != nil && best.Best.Paper.PDFURL != "" {
			target = best.Best.Paper.PDFURL
		}
		if target != "" {
			if err := browser.Open(target); err != nil {
				log.Warn("failed to open browser", "error", err)
			}
		}
	}
	return nil
}

// loadBundledItems refreshes feeds when stale (or forced) and otherwise
// rebuilds the bundled batch from the store.
func loadBundledItems(ctx context.Context, cfg *config.Config, bundles *feed.BundleManager, db *store.Store, log *slog.Logger) []feed.BundledItem {
	if flagRefresh || db.NeedsRefresh(cfg.RefreshDuration()) {
		fetched := feed.NewFetcher(bundles).FetchBundled(ctx, cfg.RSS.FetchLimit)
		if len(fetched) > 0 {
			now := time.Now()
			rows := make([]store.Item, 0, len(fetched))
			for _, bi := range fetched {
				rows = append(rows, store.Item{
					ID:         store.ItemID(bi.Item),
					Source:     bi.Item.Source,
					Title:      bi.Item.Title,
					URL:        bi.Item.URL,
					Summary:    bi.Item.Summary,
					BundleName: bi.BundleName,
					ArxivCodes: bi.ArxivCodes,
					Published:  bi.Item.Published,
					FetchedAt:  now,
				})
			}
			if err := db.UpsertItems(rows); err != nil {
				log.Warn("failed to store fetched items", "error", err)
			} else {
				db.SetLastRefresh()
			}
			return fetched
		}
		log.Warn("feed refresh returned nothing, falling back to stored items")
	} else {
		log.Info("using stored news items", "refresh_interval", cfg.RSS.RefreshInterval)
	}

	stored, err := db.Items(store.QueryOpts{Limit: cfg.RSS.FetchLimit})
	if err != nil {
		log.Warn("failed to read stored items", "error", err)
		return nil
	}
	bundled := make([]feed.BundledItem, 0, len(stored))
	for _, row := range stored {
		bundled = append(bundled, feed.BundledItem{
			Item:       row.NewsItem(),
			BundleName: row.BundleName,
			ArxivCodes: row.ArxivCodes,
		})
	}
	return bundled
}
