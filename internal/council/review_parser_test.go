package council

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	domain "github.com/modelcouncil/council/pkg/council"
)

func TestBuildLabelMapAssignsSequentially(t *testing.T) {
	labelToModel, modelToLabel := BuildLabelMap([]string{"m1", "m2", "m3"})
	if labelToModel["A"] != "m1" || labelToModel["B"] != "m2" || labelToModel["C"] != "m3" {
		t.Fatalf("labelToModel = %v", labelToModel)
	}
	if modelToLabel["m1"] != "A" {
		t.Fatalf("modelToLabel[m1] = %q, want A", modelToLabel["m1"])
	}
}

func TestParseReviewHappyPath(t *testing.T) {
	labelToModel, _ := BuildLabelMap([]string{"m1", "m2", "m3"})
	raw := "Rank 1: B — concise and correct\nRank 2: C — also correct but verbose"
	result := ParseReview("m1", labelToModel, raw)

	if !result.ParseOK {
		t.Fatalf("ParseOK = false, want true; raw=%q", raw)
	}
	if len(result.Rankings) != 2 {
		t.Fatalf("len(Rankings) = %d, want 2", len(result.Rankings))
	}
	want := []domain.Ranking{
		{ModelID: "m2", Rank: 1, Reasoning: "concise and correct"},
		{ModelID: "m3", Rank: 2, Reasoning: "also correct but verbose"},
	}
	if diff := cmp.Diff(want, result.Rankings); diff != "" {
		t.Fatalf("Rankings mismatch (-want +got):\n%s", diff)
	}
}

func TestParseReviewDropsSelfRanking(t *testing.T) {
	labelToModel, _ := BuildLabelMap([]string{"m1", "m2", "m3"})
	raw := "Rank 1: A — I think mine is best\nRank 2: B — good\nRank 3: C — fine"
	result := ParseReview("m1", labelToModel, raw)

	for _, r := range result.Rankings {
		if r.ModelID == "m1" {
			t.Fatalf("self-ranking should be dropped, got %+v", result.Rankings)
		}
	}
	// renumbered to contiguous 1..k after dropping self
	if len(result.Rankings) > 0 && result.Rankings[0].Rank != 1 {
		t.Fatalf("first rank after self-drop = %d, want 1", result.Rankings[0].Rank)
	}
}

func TestParseReviewToleratesFormatDrift(t *testing.T) {
	labelToModel, _ := BuildLabelMap([]string{"m1", "m2", "m3"})
	raw := "#1: B - great\n2. C: decent"
	result := ParseReview("m1", labelToModel, raw)
	if !result.ParseOK {
		t.Fatalf("expected tolerant parse to succeed for %q", raw)
	}
	if len(result.Rankings) != 2 {
		t.Fatalf("len(Rankings) = %d, want 2", len(result.Rankings))
	}
}

func TestParseReviewMalformedSetsParseOKFalse(t *testing.T) {
	labelToModel, _ := BuildLabelMap([]string{"m1", "m2", "m3"})
	raw := "I don't know."
	result := ParseReview("m2", labelToModel, raw)
	if result.ParseOK {
		t.Fatal("expected ParseOK=false for unparseable reply")
	}
	if len(result.Rankings) != 0 {
		t.Fatalf("expected empty rankings, got %v", result.Rankings)
	}
	if result.RawText != raw {
		t.Fatalf("RawText = %q, want preserved %q", result.RawText, raw)
	}
}

func TestParseReviewDropsDuplicateModelIDs(t *testing.T) {
	labelToModel, _ := BuildLabelMap([]string{"m1", "m2", "m3"})
	raw := "Rank 1: B — first mention\nRank 2: B — duplicate\nRank 3: C — ok"
	result := ParseReview("m1", labelToModel, raw)
	count := 0
	for _, r := range result.Rankings {
		if r.ModelID == "m2" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("m2 appeared %d times, want 1", count)
	}
}
