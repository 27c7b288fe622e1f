package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/database"
)

func newTestComplianceDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared",
		Profile: database.ProfileStandard,
		Name:    "compliance",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAuditor_RecordInsertsRow(t *testing.T) {
	db := newTestComplianceDB(t)
	a := NewAuditor(db)

	result := &Result{
		Action:           ActionModified,
		DetectedLanguage: "en",
		ViolationsFound:  []Violation{{Bucket: "advice_pattern", Language: "en", Matched: "should buy"}},
		Modifications:    []Modification{{Step: "advice_rewrite", From: "should buy", To: "may consider"}},
		Confidence:       0.85,
		DisclaimerAdded:  true,
	}
	require.NoError(t, a.Record(result))

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM guardrail_runs WHERE action = ?`, string(ActionModified))
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)
}
