package llm

import (
	"math"
	"testing"
)

func TestLookupCost(t *testing.T) {
	c := LookupCost("gemini-2.0-flash")
	if c == nil {
		t.Fatal("expected pricing for gemini-2.0-flash")
	}
	got := c.Cost(1_000_000, 500_000)
	if math.Abs(got-0.3) > 1e-9 {
		t.Errorf("Cost = %v, want 0.3", got)
	}
	if LookupCost("no-such-model") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestFriendlyNamesArePriced(t *testing.T) {
	for _, models := range []map[string]string{geminiModels, openaiModels, anthropicModels} {
		for name, id := range models {
			if LookupCost(id) == nil {
				t.Errorf("%s resolves to %s which has no pricing", name, id)
			}
		}
	}
}
