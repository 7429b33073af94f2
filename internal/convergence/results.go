package convergence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// snapshot is the results file written once per pipeline run.
type snapshot struct {
	Selected          resultRecord   `json:"selected"`
	AllCandidates     []resultRecord `json:"all_candidates"`
	ConvergenceWeight float64        `json:"convergence_weight"`
	RunID             string         `json:"run_id"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

type resultRecord struct {
	NewsTitle        string            `json:"news_title"`
	ImpactScore      float64           `json:"impact_score"`
	Categories       []categoryRecord  `json:"categories"`
	Candidates       []candidateRecord `json:"candidates"`
	ConvergenceScore float64           `json:"convergence_score"`
	CombinedScore    float64           `json:"combined_score"`
	BestCandidate    *candidateRecord  `json:"best_candidate"`
}

type categoryRecord struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

type candidateRecord struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Relevance      float64 `json:"relevance"`
	SourceCategory string  `json:"source_category"`
}

func toRecord(r Result) resultRecord {
	rec := resultRecord{
		NewsTitle:        r.Item.Item.Title,
		ImpactScore:      r.Item.Score,
		Categories:       make([]categoryRecord, 0, len(r.Categories)),
		Candidates:       make([]candidateRecord, 0, len(r.Candidates)),
		ConvergenceScore: r.ConvergenceScore,
		CombinedScore:    r.CombinedScore,
	}
	for _, m := range r.Categories {
		rec.Categories = append(rec.Categories, categoryRecord{
			Code:       m.Category.Code,
			Name:       m.Category.Name,
			Similarity: m.Similarity,
		})
	}
	for _, c := range r.Candidates {
		rec.Candidates = append(rec.Candidates, candidateRecord{
			ID:             c.Paper.ArxivID,
			Title:          c.Paper.Title,
			Relevance:      c.Relevance,
			SourceCategory: c.SourceCategory,
		})
	}
	if r.Best != nil {
		rec.BestCandidate = &candidateRecord{
			ID:             r.Best.Paper.ArxivID,
			Title:          r.Best.Paper.Title,
			Relevance:      r.Best.Relevance,
			SourceCategory: r.Best.SourceCategory,
		}
	}
	return rec
}

// WriteSnapshot persists the selected result and all candidates to path,
// replacing any previous run's file.
func WriteSnapshot(path string, best Result, all []Result, weight float64) error {
	records := make([]resultRecord, 0, len(all))
	for _, r := range all {
		records = append(records, toRecord(r))
	}
	snap := snapshot{
		Selected:          toRecord(best),
		AllCandidates:     records,
		ConvergenceWeight: weight,
		RunID:             uuid.NewString(),
		GeneratedAt:       time.Now().UTC(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}
