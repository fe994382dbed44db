package council

import (
	"strings"
	"testing"
	"time"

	"github.com/modelcouncil/council/internal/llm"
	domain "github.com/modelcouncil/council/pkg/council"
)

func TestLabelSequence(t *testing.T) {
	cases := map[int]string{0: "A", 1: "B", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"}
	for idx, want := range cases {
		if got := Label(idx); got != want {
			t.Errorf("Label(%d) = %q, want %q", idx, got, want)
		}
	}
}

func TestStage1MessagesPrependsSystemAndAppendsUser(t *testing.T) {
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "earlier question", Timestamp: time.Now()},
		{Role: domain.RoleAssistant, Content: "earlier answer", Timestamp: time.Now()},
	}
	msgs := Stage1Messages(history, "new question")
	if len(msgs) != 4 {
		t.Fatalf("len(msgs) = %d, want 4", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem {
		t.Fatalf("msgs[0].Role = %q, want system", msgs[0].Role)
	}
	if last := msgs[len(msgs)-1]; last.Role != llm.RoleUser || last.Content != "new question" {
		t.Fatalf("last message = %+v", last)
	}
}

func TestStage2MessagesListsAllLabels(t *testing.T) {
	msgs := Stage2Messages("what is 2+2?", []string{"A", "B"}, []string{"four", "4"})
	if len(msgs) != 1 || msgs[0].Role != llm.RoleUser {
		t.Fatalf("Stage2Messages() = %+v", msgs)
	}
	content := msgs[0].Content
	if !strings.Contains(content, "Response A:") || !strings.Contains(content, "Response B:") {
		t.Fatalf("content missing labels: %q", content)
	}
	if !strings.Contains(content, "exactly 2 lines") {
		t.Fatalf("content missing line-count instruction: %q", content)
	}
}

func TestAggregateRankingsIgnoresUnparsedReviews(t *testing.T) {
	reviews := []domain.ReviewResult{
		{ReviewerModelID: "m1", ParseOK: true, Rankings: []domain.Ranking{{ModelID: "m2", Rank: 1}, {ModelID: "m3", Rank: 2}}},
		{ReviewerModelID: "m2", ParseOK: true, Rankings: []domain.Ranking{{ModelID: "m1", Rank: 1}, {ModelID: "m3", Rank: 2}}},
		{ReviewerModelID: "m3", ParseOK: false},
	}
	means := AggregateRankings(reviews)
	if len(means) != 3 {
		t.Fatalf("len(means) = %d, want 3", len(means))
	}
	// m1 ranked once at 1 -> mean 1.0; m2 ranked once at 1 -> mean 1.0; tie broken lexicographically.
	if means[0].ModelID != "m1" || means[1].ModelID != "m2" {
		t.Fatalf("means = %+v, want m1 then m2 on tie-break", means)
	}
	if means[2].ModelID != "m3" || means[2].Mean != 2.0 {
		t.Fatalf("m3 mean = %+v, want 2.0", means[2])
	}
}

func TestStage3MessagesSkipsFailedOpinions(t *testing.T) {
	opinions := []domain.ModelOpinion{
		{ModelID: "m1", Text: "answer one"},
		{ModelID: "m2", Error: "timeout"},
	}
	msgs := Stage3Messages(nil, "question", opinions, nil)
	content := msgs[len(msgs)-1].Content
	if !strings.Contains(content, "answer one") {
		t.Fatalf("content missing m1's opinion: %q", content)
	}
	if strings.Contains(content, "[m2]") {
		t.Fatalf("content should not include failed opinion m2: %q", content)
	}
}
