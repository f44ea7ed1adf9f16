package profile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/model"
)

func TestProfileMergeDeduplicates(t *testing.T) {
	s := NewStore()
	s.Merge([]model.ProfileFact{{Content: "Lives in San Francisco"}})
	s.Merge([]model.ProfileFact{{Content: "Lives in SF"}})

	facts := s.Facts()
	require.Len(t, facts, 1)
	require.Equal(t, "Lives in SF", facts[0].Content)
}

func TestProfileMergeKeepsUnrelatedFacts(t *testing.T) {
	s := NewStore()
	s.Merge([]model.ProfileFact{{Content: "Lives in San Francisco"}})
	s.Merge([]model.ProfileFact{{Content: "Works as a software engineer"}})

	facts := s.Facts()
	require.Len(t, facts, 2)
}

func TestNoTwoFactsOverlapAbove60Percent(t *testing.T) {
	s := NewStore()
	s.Merge([]model.ProfileFact{
		{Content: "Lives in San Francisco"},
		{Content: "Owns a small dog named Rex"},
		{Content: "Works remotely as an engineer"},
	})
	facts := s.Facts()
	for i := 0; i < len(facts); i++ {
		for j := i + 1; j < len(facts); j++ {
			require.Less(t, overlap(wordSet(facts[i].Content), wordSet(facts[j].Content)), overlapThreshold)
		}
	}
}

func TestFormatBlock(t *testing.T) {
	block := FormatBlock([]model.ProfileFact{{Content: "Lives in SF"}})
	require.Equal(t, "<user_profile>\n- Lives in SF\n</user_profile>", block)
	require.Empty(t, FormatBlock(nil))
}

func TestParseMemoriesLines(t *testing.T) {
	text := "The user lives in Berlin and works at a startup.\n- a bullet line\nhi\n" +
		"This line restates that the user enjoys long distance cycling on weekends."
	facts := ParseMemoriesLines(text)
	require.Len(t, facts, 2)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := NewStore()
	s.Merge([]model.ProfileFact{{Content: "Lives in SF"}})
	snap := s.Save()

	s2 := NewStore()
	s2.Load(snap)
	require.Equal(t, s.Facts(), s2.Facts())
}
