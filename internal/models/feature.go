package models

import "time"

// Optional relations detected at startup.
const (
	FeatureTestSessions = "test_sessions"
	FeatureResults      = "resultados"
	FeatureAuditLogs    = "audit_logs"
)

// FeatureSet records which optional relations exist in the connected database.
type FeatureSet struct {
	Relations map[string]bool `json:"relations"`
	CheckedAt time.Time       `json:"checked_at"`
}

// Available reports whether relation was found.
func (f FeatureSet) Available(relation string) bool {
	return f.Relations[relation]
}
