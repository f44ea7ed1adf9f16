package query

import "testing"

func TestIsCountingQuery(t *testing.T) {
	cases := map[string]bool{
		"how many trips did I take":         true,
		"How Many times did we talk about it": true,
		"what is the number of cities I visited": true,
		"how much have I traveled over the years, in occasions": true,
		"count the number of times I mentioned python": true,
		"what do I like to eat":             false,
		"tell me about my last trip":        false,
	}
	for query, want := range cases {
		if got := isCountingQuery(query); got != want {
			t.Errorf("isCountingQuery(%q) = %v, want %v", query, got, want)
		}
	}
}
