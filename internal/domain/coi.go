package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// COI lifecycle states (wire-level, case-sensitive).
const (
	StatusAwaitingBrokerInfo      = "awaiting_broker_info"
	StatusAwaitingBrokerUpload    = "awaiting_broker_upload"
	StatusAwaitingBrokerSignature = "awaiting_broker_signature"
	StatusPendingBrokerSignature  = "pending_broker_signature" // legacy alias of awaiting_broker_signature
	StatusAwaitingAdminReview     = "awaiting_admin_review"
	StatusActive                  = "active"
	StatusDeficiencyPending       = "deficiency_pending"
)

// Compliance status values (compliance_status column).
const (
	CompliancePending      = "pending"
	ComplianceCompliant    = "compliant"
	ComplianceNonCompliant = "non_compliant"
)

// NormalizeStatus maps a stored or caller-supplied status string onto a known
// state. The legacy signature alias normalizes to awaiting_broker_signature;
// anything unrecognized falls back to awaiting_broker_info, the safest state
// for a certificate of unknown provenance.
func NormalizeStatus(s string) string {
	switch s {
	case StatusAwaitingBrokerInfo, StatusAwaitingBrokerUpload, StatusAwaitingBrokerSignature,
		StatusAwaitingAdminReview, StatusActive, StatusDeficiencyPending:
		return s
	case StatusPendingBrokerSignature:
		return StatusAwaitingBrokerSignature
	default:
		return StatusAwaitingBrokerInfo
	}
}

// GeneratedCOI is the certificate record for one (project, subcontractor)
// pairing. Historical rows may coexist but at most one is active at a time.
// Rows are never physically deleted; a replace starts a new review cycle on
// the same row.
type GeneratedCOI struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID       uuid.UUID `gorm:"column:project_id;type:uuid;not null;index" json:"project_id"`
	SubcontractorID uuid.UUID `gorm:"column:subcontractor_id;type:uuid;not null;index" json:"subcontractor_id"`

	Status string `gorm:"column:status;type:varchar(40);not null;default:'awaiting_broker_info'" json:"status"`

	BrokerName    *string `gorm:"column:broker_name" json:"broker_name"`
	BrokerEmail   *string `gorm:"column:broker_email" json:"broker_email"`
	BrokerPhone   *string `gorm:"column:broker_phone" json:"broker_phone"`
	BrokerCompany *string `gorm:"column:broker_company" json:"broker_company"`

	// COIToken grants the bearer token-only access to this COI's public
	// endpoints. Checked by exact match on every use; expires at TokenExpiresAt.
	COIToken       *string    `gorm:"column:coi_token;uniqueIndex" json:"-"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at" json:"token_expires_at"`

	GLExpirationDate       *time.Time `gorm:"column:gl_expiration_date" json:"gl_expiration_date"`
	AutoExpirationDate     *time.Time `gorm:"column:auto_expiration_date" json:"auto_expiration_date"`
	UmbrellaExpirationDate *time.Time `gorm:"column:umbrella_expiration_date" json:"umbrella_expiration_date"`
	WCExpirationDate       *time.Time `gorm:"column:wc_expiration_date" json:"wc_expiration_date"`

	ComplianceStatus  string         `gorm:"column:compliance_status;type:varchar(32);not null;default:'pending'" json:"compliance_status"`
	ComplianceIssues  datatypes.JSON `gorm:"column:compliance_issues;type:jsonb" json:"compliance_issues"`
	DeficiencyMessage *string        `gorm:"column:deficiency_message;type:text" json:"deficiency_message"`

	FirstCOIURL     *string `gorm:"column:first_coi_url" json:"first_coi_url"`
	SampleCOIPDFURL *string `gorm:"column:sample_coi_pdf_url" json:"sample_coi_pdf_url"`

	// BrokerVerifiedAtRenewal is reset every renewal cycle; while false inside
	// the renewal window no further transitions are accepted on this COI.
	BrokerVerifiedAtRenewal bool `gorm:"column:broker_verified_at_renewal;not null;default:false" json:"broker_verified_at_renewal"`

	UploadRequestID   *uuid.UUID `gorm:"column:upload_request_id;type:uuid" json:"upload_request_id"`
	ComplianceCheckID *uuid.UUID `gorm:"column:compliance_check_id;type:uuid" json:"compliance_check_id"`

	BrokerNotifiedDate    *time.Time `gorm:"column:broker_notified_date" json:"broker_notified_date"`
	RenewalNoticeDate     *time.Time `gorm:"column:renewal_notice_date" json:"renewal_notice_date"`
	UploadedForReviewDate *time.Time `gorm:"column:uploaded_for_review_date" json:"uploaded_for_review_date"`
	ReviewedBy            *string    `gorm:"column:reviewed_by" json:"reviewed_by"`
	ReviewDate            *time.Time `gorm:"column:review_date" json:"review_date"`

	CreatedBy *string   `gorm:"column:created_by" json:"created_by"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (GeneratedCOI) TableName() string {
	return "generated_cois"
}

func (c *GeneratedCOI) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BrokerUploadRequest statuses.
const (
	UploadPending         = "pending"
	UploadUploaded        = "uploaded"
	UploadUnderReview     = "under_review"
	UploadApproved        = "approved"
	UploadRejected        = "rejected"
	UploadNeedsCorrection = "needs_correction"
)

// BrokerUploadRequest tracks one outbound ask to a broker. Correlated 1:1
// with the COI's current request cycle via upload_request_id.
type BrokerUploadRequest struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	COIID       uuid.UUID  `gorm:"column:coi_id;type:uuid;not null;index" json:"coi_id"`
	SentDate    *time.Time `gorm:"column:sent_date" json:"sent_date"`
	Status      string     `gorm:"column:status;type:varchar(32);not null;default:'pending'" json:"status"`
	UploadToken *string    `gorm:"column:upload_token" json:"-"`
	DocumentURL *string    `gorm:"column:document_url" json:"document_url"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (BrokerUploadRequest) TableName() string {
	return "broker_upload_requests"
}

func (r *BrokerUploadRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ComplianceCheck is the audit row written for every admin review outcome and
// replace request.
type ComplianceCheck struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	COIID     uuid.UUID      `gorm:"column:coi_id;type:uuid;not null;index" json:"coi_id"`
	CheckType string         `gorm:"column:check_type;type:varchar(32);not null" json:"check_type"`
	Status    string         `gorm:"column:status;type:varchar(32);not null" json:"status"`
	Result    datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CheckedBy *string        `gorm:"column:checked_by" json:"checked_by"`
	Notes     *string        `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (ComplianceCheck) TableName() string {
	return "compliance_checks"
}

func (cc *ComplianceCheck) BeforeCreate(tx *gorm.DB) error {
	if cc.ID == uuid.Nil {
		cc.ID = uuid.New()
	}
	return nil
}
