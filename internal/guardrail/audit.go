package guardrail

import (
	"time"

	"github.com/aristath/sentinel-gateway/internal/database"
)

// Auditor persists one row per guardrail run to the compliance database's
// guardrail_runs table, independent of the Guardrail type itself so
// callers that don't need an audit trail (tests, one-off CLI checks)
// aren't forced to wire a database.
type Auditor struct {
	db *database.DB
}

func NewAuditor(db *database.DB) *Auditor {
	return &Auditor{db: db}
}

// Record inserts a row describing one Process call's outcome.
func (a *Auditor) Record(result *Result) error {
	_, err := a.db.Exec(`
		INSERT INTO guardrail_runs
			(action, detected_language, violation_count, modification_count, confidence, disclaimer_added, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(result.Action), result.DetectedLanguage, len(result.ViolationsFound), len(result.Modifications),
		result.Confidence, boolToInt(result.DisclaimerAdded), time.Now().Unix(),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
