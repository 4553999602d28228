package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Contractor types (contractor_type column).
const (
	TypeGeneralContractor = "general_contractor"
	TypeSubcontractor     = "subcontractor"
)

// Contractor is a company record, either a general contractor or a
// subcontractor depending on contractor_type.
type Contractor struct {
	ID             uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CompanyName    string         `gorm:"column:company_name;not null;index" json:"company_name"`
	ContractorType string         `gorm:"column:contractor_type;type:varchar(32);not null" json:"contractor_type"`
	Email          *string        `gorm:"column:email" json:"email"`
	Phone          *string        `gorm:"column:phone" json:"phone"`
	Address        *string        `gorm:"column:address" json:"address"`
	City           *string        `gorm:"column:city" json:"city"`
	State          *string        `gorm:"column:state;type:varchar(2)" json:"state"`
	ZipCode        *string        `gorm:"column:zip_code" json:"zip_code"`

	// TradeTypes is the ordered list of trade names the company performs.
	// TradeType is the single legacy field kept for rows created before the
	// list existed; the matcher falls back to it when TradeTypes is empty.
	TradeTypes datatypes.JSON `gorm:"column:trade_types;type:jsonb" json:"trade_types"`
	TradeType  *string        `gorm:"column:trade_type" json:"trade_type"`

	// Global (not project-specific) broker assignment.
	BrokerName    *string `gorm:"column:broker_name" json:"broker_name"`
	BrokerEmail   *string `gorm:"column:broker_email" json:"broker_email"`
	BrokerPhone   *string `gorm:"column:broker_phone" json:"broker_phone"`
	BrokerCompany *string `gorm:"column:broker_company" json:"broker_company"`

	Notes *string `gorm:"column:notes;type:text" json:"notes"`

	ArchivedAt     *time.Time `gorm:"column:archived_at;index" json:"archived_at"`
	ArchivedBy     *string    `gorm:"column:archived_by" json:"archived_by"`
	ArchivedReason *string    `gorm:"column:archived_reason" json:"archived_reason"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Contractor) TableName() string {
	return "contractors"
}

// BeforeCreate ensures id is set for DBs without default uuid.
func (c *Contractor) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// IsGC reports whether the contractor is a general contractor.
func (c *Contractor) IsGC() bool {
	return c.ContractorType == TypeGeneralContractor
}

// Archived reports whether the record carries an archive stamp.
func (c *Contractor) Archived() bool {
	return c.ArchivedAt != nil
}
