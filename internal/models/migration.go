package models

import "time"

// MigrationLog records a data migration that has been applied.
type MigrationLog struct {
	ID                     string    `gorm:"primaryKey;type:varchar(128)" json:"id"`
	Description            string    `json:"description"`
	AppliedAt              time.Time `json:"appliedAt"`
	UpdatedScans           int       `json:"updatedScans"`
	UpdatedVulnerabilities int       `json:"updatedVulnerabilities"`
}

// All lists every model the schema is built from.
func All() []any {
	return []any{&Scan{}, &Vulnerability{}, &MigrationLog{}}
}
