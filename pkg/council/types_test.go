package council

import "testing"

func TestConversationCloneIsIndependent(t *testing.T) {
	orig := &Conversation{
		ID: "conv-1",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "hi"},
		},
		Turns: []CouncilTurn{
			{
				TurnID: "turn-1",
				Opinions: []ModelOpinion{
					{ModelID: "m1", Text: "hello"},
				},
				Reviews: []ReviewResult{
					{ReviewerModelID: "m1", Rankings: []Ranking{{ModelID: "m2", Rank: 1}}},
				},
			},
		},
	}

	clone := orig.Clone()
	clone.Messages[0].Content = "mutated"
	clone.Turns[0].Opinions[0].Text = "mutated"
	clone.Turns[0].Reviews[0].Rankings[0].ModelID = "mutated"

	if orig.Messages[0].Content != "hi" {
		t.Fatalf("mutating clone leaked into original message: %q", orig.Messages[0].Content)
	}
	if orig.Turns[0].Opinions[0].Text != "hello" {
		t.Fatalf("mutating clone leaked into original opinion: %q", orig.Turns[0].Opinions[0].Text)
	}
	if orig.Turns[0].Reviews[0].Rankings[0].ModelID != "m2" {
		t.Fatalf("mutating clone leaked into original ranking: %q", orig.Turns[0].Reviews[0].Rankings[0].ModelID)
	}
}

func TestModelOpinionFailed(t *testing.T) {
	cases := []struct {
		name string
		op   ModelOpinion
		want bool
	}{
		{"with text", ModelOpinion{Text: "answer"}, false},
		{"with error", ModelOpinion{Error: "timeout"}, true},
		{"empty", ModelOpinion{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.op.Failed(); got != tc.want {
				t.Fatalf("Failed() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCloneOfNilConversation(t *testing.T) {
	var c *Conversation
	if got := c.Clone(); got != nil {
		t.Fatalf("Clone() of nil = %v, want nil", got)
	}
}
