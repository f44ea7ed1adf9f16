package query

import "time"

// sleepSeconds is the real backoff clock for query-time embedding
// retries, mirroring internal/ingest's sleepSeconds.
func sleepSeconds(d int) {
	time.Sleep(time.Duration(d) * time.Second)
}
