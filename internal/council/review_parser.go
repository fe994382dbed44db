package council

import (
	"regexp"
	"sort"
	"strings"

	domain "github.com/modelcouncil/council/pkg/council"
)

// rankLineRe matches a single ranking line, tolerant of format drift:
// "Rank 1: A — reasoning", "#1: A - reasoning", "1. A: reasoning", etc.
var rankLineRe = regexp.MustCompile(`(?i)^\s*(?:rank\s*)?#?(\d+)[.:]?\s*:?\s*([A-Za-z]{1,3})\s*[—:-]\s*(.+)$`)

// ParseReview extracts a Ranking list from a reviewer's raw text reply.
// labelToModel maps each anonymous label (A, B, ...) used in the stage-2
// prompt back to the model id it stood for. Self-rankings (a label that
// resolves to reviewerID) are dropped. If fewer than half of the expected labels are
// matched, the result has ParseOK=false and an empty Rankings slice, but
// RawText is always preserved.
func ParseReview(reviewerID string, labelToModel map[string]string, rawText string) domain.ReviewResult {
	result := domain.ReviewResult{ReviewerModelID: reviewerID, RawText: rawText}

	type match struct {
		modelID   string
		reasoning string
	}
	var matches []match
	seen := map[string]bool{}

	for _, line := range strings.Split(rawText, "\n") {
		m := rankLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		label := strings.ToUpper(m[2])
		modelID, ok := labelToModel[label]
		if !ok {
			continue
		}
		if modelID == reviewerID {
			continue // I2: a reviewer never ranks itself
		}
		if seen[modelID] {
			continue // keep first occurrence only
		}
		seen[modelID] = true
		matches = append(matches, match{modelID: modelID, reasoning: strings.TrimSpace(m[3])})
	}

	expected := len(labelToModel)
	for _, modelID := range labelToModel {
		if modelID == reviewerID {
			expected--
			break
		}
	}
	if expected <= 0 {
		expected = len(labelToModel)
	}

	if len(matches) < (expected+1)/2 {
		result.ParseOK = false
		result.Rankings = nil
		return result
	}

	rankings := make([]domain.Ranking, 0, len(matches))
	for i, m := range matches {
		rankings = append(rankings, domain.Ranking{ModelID: m.modelID, Rank: i + 1, Reasoning: m.reasoning})
	}
	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].Rank < rankings[j].Rank })

	result.ParseOK = true
	result.Rankings = rankings
	return result
}

// BuildLabelMap assigns labels A, B, C, ... to modelIDs in the order
// given (the canonical order: stable, by model id ascending, fixed by the
// caller before calling this).
func BuildLabelMap(modelIDs []string) (labelToModel map[string]string, modelToLabel map[string]string) {
	labelToModel = make(map[string]string, len(modelIDs))
	modelToLabel = make(map[string]string, len(modelIDs))
	for i, id := range modelIDs {
		label := Label(i)
		labelToModel[label] = id
		modelToLabel[id] = label
	}
	return labelToModel, modelToLabel
}
