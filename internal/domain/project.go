package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project belongs to exactly one GC. Archived independently or via the GC
// cascade.
type Project struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectName   string    `gorm:"column:project_name;not null;index" json:"project_name"`
	ProjectNumber *string   `gorm:"column:project_number" json:"project_number"`
	GCID          uuid.UUID `gorm:"column:gc_id;type:uuid;not null;index" json:"gc_id"`

	Address *string `gorm:"column:address" json:"address"`
	City    *string `gorm:"column:city" json:"city"`
	State   *string `gorm:"column:state;type:varchar(2)" json:"state"`
	ZipCode *string `gorm:"column:zip_code" json:"zip_code"`

	OwnerEntity               *string        `gorm:"column:owner_entity" json:"owner_entity"`
	AdditionalInsuredEntities datatypes.JSON `gorm:"column:additional_insured_entities;type:jsonb" json:"additional_insured_entities"`
	InsuranceProgramID        *uuid.UUID     `gorm:"column:insurance_program_id;type:uuid" json:"insurance_program_id"`

	StartDate   *time.Time `gorm:"column:start_date" json:"start_date"`
	EndDate     *time.Time `gorm:"column:end_date" json:"end_date"`
	Description *string    `gorm:"column:description;type:text" json:"description"`

	ArchivedAt     *time.Time `gorm:"column:archived_at;index" json:"archived_at"`
	ArchivedBy     *string    `gorm:"column:archived_by" json:"archived_by"`
	ArchivedReason *string    `gorm:"column:archived_reason" json:"archived_reason"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Archived reports whether the record carries an archive stamp.
func (p *Project) Archived() bool {
	return p.ArchivedAt != nil
}

// ProjectSubcontractor links a subcontractor to a project. Its
// compliance_status column is a read-through cache recomputed from the
// authoritative COI state, never edited directly.
type ProjectSubcontractor struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID       uuid.UUID  `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	SubcontractorID *uuid.UUID `gorm:"column:subcontractor_id;type:uuid;index" json:"subcontractor_id"`

	CompanyName string  `gorm:"column:company_name;not null" json:"company_name"`
	ContactName *string `gorm:"column:contact_name" json:"contact_name"`
	Email       *string `gorm:"column:email" json:"email"`
	Phone       *string `gorm:"column:phone" json:"phone"`

	// Trades performed on this project specifically.
	Trades datatypes.JSON `gorm:"column:trades;type:jsonb" json:"trades"`

	ComplianceStatus *string `gorm:"column:compliance_status" json:"compliance_status"`
	Notes            *string `gorm:"column:notes;type:text" json:"notes"`

	ArchivedAt     *time.Time `gorm:"column:archived_at;index" json:"archived_at"`
	ArchivedBy     *string    `gorm:"column:archived_by" json:"archived_by"`
	ArchivedReason *string    `gorm:"column:archived_reason" json:"archived_reason"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ProjectSubcontractor) TableName() string {
	return "project_subcontractors"
}

func (ps *ProjectSubcontractor) BeforeCreate(tx *gorm.DB) error {
	if ps.ID == uuid.Nil {
		ps.ID = uuid.New()
	}
	return nil
}

// Archived reports whether the record carries an archive stamp.
func (ps *ProjectSubcontractor) Archived() bool {
	return ps.ArchivedAt != nil
}
