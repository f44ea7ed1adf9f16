package ingest

import "time"

// sleepSeconds is the real backoff clock used by embedChunks/embedFacts;
// tests inject their own no-op clock via embedding.EmbedWithRetry's sleep
// parameter directly against the embedding package, so ingest's own tests
// stub Embedder instead of patching this function.
func sleepSeconds(d int) {
	time.Sleep(time.Duration(d) * time.Second)
}
