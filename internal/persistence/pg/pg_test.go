// pg_test.go covers the backend's pure helper functions. The rest of
// Backend talks to a live Postgres instance via pgxpool and is exercised by
// integration testing against a real database, not unit tests here.
package pg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ragmemory/internal/model"
)

func TestClamp(t *testing.T) {
	require.Equal(t, 0.0, clamp(-1, 0, 1))
	require.Equal(t, 1.0, clamp(2, 0, 1))
	require.Equal(t, 0.5, clamp(0.5, 0, 1))
}

func TestMarshalUnmarshalFactsRoundTrip(t *testing.T) {
	facts := []model.ProfileFact{{Content: "likes tea"}, {Content: "works remotely"}}
	data, err := marshalFacts(facts)
	require.NoError(t, err)

	out, err := unmarshalFacts(data)
	require.NoError(t, err)
	require.Equal(t, facts, out)
}

func TestUnmarshalFactsRejectsCorruptData(t *testing.T) {
	_, err := unmarshalFacts([]byte("{not json"))
	require.Error(t, err)
}
