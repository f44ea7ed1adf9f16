package tokenize

import "testing"

func TestTokensLowercasesAndSplits(t *testing.T) {
	got := Tokens("Hello, World! I moved to Berlin in 2022.")
	want := []string{"hello", "world", "moved", "to", "berlin", "in", "2022"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTokensDropsShortTokens(t *testing.T) {
	got := Tokens("a I to an it apple")
	for _, tok := range got {
		if len(tok) < 2 {
			t.Errorf("unexpected short token %q", tok)
		}
	}
	if ContainsToken(got, "apple") == false {
		t.Errorf("expected apple to survive filtering")
	}
}

func TestContainsToken(t *testing.T) {
	toks := []string{"likes", "tea", "and", "coffee"}
	if !ContainsToken(toks, "tea") {
		t.Errorf("expected tea to be found")
	}
	if ContainsToken(toks, "soda") {
		t.Errorf("did not expect soda to be found")
	}
}
