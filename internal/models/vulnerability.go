package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"scanhub/pkg/taxonomy"
	"scanhub/pkg/tools"
)

type Location struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// Vulnerability is the normalized, tool-independent finding record.
type Vulnerability struct {
	ID          string                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ScanID      string                `gorm:"type:varchar(36);index" json:"scanId"`
	Tool        tools.ToolName        `gorm:"type:varchar(64);index" json:"tool"`
	Severity    taxonomy.Severity     `gorm:"type:varchar(16);index" json:"severity"`
	Type        string                `json:"type"`
	Location    Location              `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Title       string                `json:"title"`
	Description string                `gorm:"type:text" json:"description"`
	Remediation string                `gorm:"type:text" json:"remediation,omitempty"`
	References  []string              `gorm:"serializer:json" json:"references"`
	CWE         string                `json:"cwe,omitempty"`
	RuleID      string                `json:"ruleId,omitempty"`
	Status      taxonomy.TriageStatus `gorm:"type:varchar(16);default:open" json:"status"`
	CreatedAt   time.Time             `json:"createdAt"`

	// Ordinal is the position of the finding within its scan.
	Ordinal int `gorm:"index" json:"-"`
}

// BeforeCreate assigns an id to findings that arrive without one.
func (v *Vulnerability) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
