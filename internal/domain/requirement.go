package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectInsuranceRequirement is a requirement document scoped to a project.
// requirement_tier orders by risk (1 highest priority band rendered first);
// an empty applicable_trades list means the requirement applies to every
// trade in its tier.
type ProjectInsuranceRequirement struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID uuid.UUID `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`

	Title       string  `gorm:"column:title;not null" json:"title"`
	DocumentURL *string `gorm:"column:document_url" json:"document_url"`

	RequirementTier  int            `gorm:"column:requirement_tier;not null" json:"requirement_tier"`
	ApplicableTrades datatypes.JSON `gorm:"column:applicable_trades;type:jsonb" json:"applicable_trades"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ProjectInsuranceRequirement) TableName() string {
	return "project_insurance_requirements"
}

func (r *ProjectInsuranceRequirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ValidateTier rejects tiers outside 1..3 at write time.
func ValidateTier(tier int) error {
	if tier < 1 || tier > 3 {
		return fmt.Errorf("requirement_tier must be 1, 2 or 3, got %d", tier)
	}
	return nil
}
