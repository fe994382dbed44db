// Package council implements the orchestration engine: prompt building,
// review parsing, per-stage fan-out, and the top-level state machine.
package council

import (
	"fmt"
	"sort"
	"strings"

	"github.com/modelcouncil/council/internal/llm"
	domain "github.com/modelcouncil/council/pkg/council"
)

const stage1System = "You are participating in a council of AI models. Answer the user's question directly and concisely, drawing on the conversation history if relevant."

// Stage1Messages builds the request for a single councilor's stage-1
// opinion: the standing system directive, prior history, then the new
// user message. Pure function; no I/O.
func Stage1Messages(history []domain.ChatMessage, userMessage string) []llm.CompletionMessage {
	msgs := make([]llm.CompletionMessage, 0, len(history)+2)
	msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleSystem, Content: stage1System})
	for _, m := range history {
		msgs = append(msgs, llm.CompletionMessage{Role: llm.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleUser, Content: userMessage})
	return msgs
}

// Label returns the anonymous label (A, B, C, ... Z, AA, AB, ...) for a
// zero-based index in the canonical opinion order.
func Label(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	for {
		b = append([]byte{byte('A' + index%26)}, b...)
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return string(b)
}

// Stage2Messages builds the single user-role review prompt for one
// reviewer, given the anonymized opinions in canonical label order.
// labels[i] corresponds to opinions[i].
func Stage2Messages(userMessage string, labels []string, opinions []string) []llm.CompletionMessage {
	var b strings.Builder
	fmt.Fprintf(&b, "The original question was:\n\n%s\n\n", userMessage)
	b.WriteString("Below are anonymized responses from several models. Rank them from best to worst.\n\n")
	for i, label := range labels {
		fmt.Fprintf(&b, "Response %s:\n%s\n\n", label, opinions[i])
	}
	fmt.Fprintf(&b, "Output exactly %d lines, one per response, best first, each of the form:\n", len(labels))
	b.WriteString("Rank N: <label> — <one sentence of reasoning>\n\n")
	b.WriteString("Omit the line for your own response if you can identify it among the above.")

	return []llm.CompletionMessage{{Role: llm.RoleUser, Content: b.String()}}
}

// RankedMean is one candidate's aggregated standing across reviewers,
// used in the stage-3 synthesis prompt.
type RankedMean struct {
	ModelID  string
	Mean     float64
	Reviewed int
}

// AggregateRankings computes each candidate model's mean rank across the
// reviewers that ranked it. Lower is better; ties are broken
// lexicographically by model id.
func AggregateRankings(reviews []domain.ReviewResult) []RankedMean {
	sums := map[string]int{}
	counts := map[string]int{}
	for _, r := range reviews {
		if !r.ParseOK {
			continue
		}
		for _, rk := range r.Rankings {
			sums[rk.ModelID] += rk.Rank
			counts[rk.ModelID]++
		}
	}

	out := make([]RankedMean, 0, len(counts))
	for id, n := range counts {
		out = append(out, RankedMean{ModelID: id, Mean: float64(sums[id]) / float64(n), Reviewed: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return out[i].Mean < out[j].Mean
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

const stage3SystemTemplate = "You are the chairman of this council of AI models. Synthesize a single answer that integrates the strongest points of the opinions below and resolves any contradictions between them."

// Stage3Messages builds the chairman's synthesis prompt: a system
// directive, then history, opinions attributed by model id, and an
// aggregated ranking summary.
func Stage3Messages(history []domain.ChatMessage, userMessage string, opinions []domain.ModelOpinion, reviews []domain.ReviewResult) []llm.CompletionMessage {
	msgs := make([]llm.CompletionMessage, 0, len(history)+2)
	msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleSystem, Content: stage3SystemTemplate})
	for _, m := range history {
		msgs = append(msgs, llm.CompletionMessage{Role: llm.Role(m.Role), Content: m.Content})
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Original question:\n\n%s\n\n", userMessage)
	b.WriteString("Council opinions:\n\n")
	for _, op := range opinions {
		if op.Failed() {
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n\n", op.ModelID, op.Text)
	}

	means := AggregateRankings(reviews)
	if len(means) > 0 {
		b.WriteString("Aggregated peer ranking (lower mean rank is better):\n")
		for _, m := range means {
			fmt.Fprintf(&b, "- %s: mean rank %.2f across %d reviewer(s)\n", m.ModelID, m.Mean, m.Reviewed)
		}
		b.WriteString("\n")
	}
	b.WriteString("Synthesize the single best answer to the original question.")

	msgs = append(msgs, llm.CompletionMessage{Role: llm.RoleUser, Content: b.String()})
	return msgs
}
