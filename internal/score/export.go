package score

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type exportJSON struct {
	Timestamp       string       `json:"timestamp"`
	Models          []ModelScore `json:"models"`
	LifetimeCostUSD float64      `json:"lifetime_cost_usd,omitempty"`
}

// SortByIndex orders scores by Independence Index, highest first.
func SortByIndex(scores []ModelScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].IndependenceIndex > scores[j].IndependenceIndex
	})
}

// Export writes the ranked leaderboard to a timestamped JSON file in the
// results directory and returns its path.
func Export(resultsDir string, scores []ModelScore, lifetimeCostUSD float64) (string, error) {
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return "", fmt.Errorf("create results dir: %w", err)
	}

	SortByIndex(scores)
	now := time.Now().UTC()
	out := exportJSON{
		Timestamp:       now.Format(time.RFC3339),
		Models:          scores,
		LifetimeCostUSD: lifetimeCostUSD,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal leaderboard: %w", err)
	}

	path := filepath.Join(resultsDir, fmt.Sprintf("leaderboard_%s.json", now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write leaderboard: %w", err)
	}
	return path, nil
}

// Summary renders a plain-text leaderboard table.
func Summary(scores []ModelScore) string {
	if len(scores) == 0 {
		return "no scored results\n"
	}

	SortByIndex(scores)

	var b strings.Builder
	fmt.Fprintf(&b, "%-4s %-44s %7s %7s %7s %7s %7s %7s\n",
		"#", "model", "index", "dist", "nonasst", "resist", "stab", "drift")
	for i, ms := range scores {
		fmt.Fprintf(&b, "%-4d %-44s %7.1f %7s %7s %7s %7s %7s\n",
			i+1,
			ms.ModelID,
			ms.IndependenceIndex,
			dim(ms.Identity, "distinctiveness"),
			dim(ms.Identity, "non_assistant_likeness"),
			dim(ms.Resistance, "resistance_score"),
			dim(ms.Stability, "consistency_score"),
			dim(ms.Identity, "drift_from_initial"),
		)
	}
	return b.String()
}

func dim(exp ExperimentScores, key string) string {
	v, ok := exp.Dimensions[key]
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}
