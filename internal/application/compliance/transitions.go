package compliance

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"coitrack-backend/internal/application/broker"
	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/metrics"
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Result carries the COI after a committed event plus any post-commit
// notification warnings.
type Result struct {
	COI      *domain.GeneratedCOI `json:"coi"`
	Warnings []string             `json:"warnings,omitempty"`
}

// CreateCOI starts the lifecycle for a (project, subcontractor) pairing in
// awaiting_broker_info. At most one open COI per pairing.
func (s *Service) CreateCOI(ctx context.Context, act actor.Context, projectID, projectSubID uuid.UUID) (*domain.GeneratedCOI, error) {
	var ps domain.ProjectSubcontractor
	if err := s.DB.WithContext(ctx).Where("id = ? AND project_id = ?", projectSubID, projectID).First(&ps).Error; err != nil {
		return nil, apperrors.NotFound("Project subcontractor not found")
	}
	if ps.Archived() {
		return nil, apperrors.NotFound("Project subcontractor is archived")
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.GeneratedCOI{}).
		Where("project_id = ? AND subcontractor_id = ? AND status <> ?", projectID, projectSubID, domain.StatusDeficiencyPending).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apperrors.Validation("A COI already exists for this subcontractor on this project")
	}

	coi := &domain.GeneratedCOI{
		ProjectID:        projectID,
		SubcontractorID:  projectSubID,
		Status:           domain.StatusAwaitingBrokerInfo,
		ComplianceStatus: domain.CompliancePending,
		CreatedBy:        &act.ID,
	}
	if err := s.DB.WithContext(ctx).Create(coi).Error; err != nil {
		return nil, err
	}
	metrics.RecordTransition("create", "ok")
	return coi, nil
}

// RequestBrokerInfoInput carries the broker contact details for the request
// event.
type RequestBrokerInfoInput struct {
	BrokerName      string `json:"broker_name"`
	BrokerEmail     string `json:"broker_email"`
	BrokerPhone     string `json:"broker_phone"`
	BrokerCompany   string `json:"broker_company"`
	SampleCOIPDFURL string `json:"sample_coi_pdf_url"`
}

// RequestBrokerInfo moves awaiting_broker_info → awaiting_broker_upload:
// generates the access token, opens the upload request cycle, stamps
// broker_notified_date and emails the broker the upload link plus a sample
// certificate reference.
func (s *Service) RequestBrokerInfo(ctx context.Context, act actor.Context, coiID uuid.UUID, in RequestBrokerInfoInput) (*Result, error) {
	in.BrokerEmail = strings.TrimSpace(in.BrokerEmail)
	if in.BrokerEmail == "" {
		return nil, apperrors.Validation("broker_email is required")
	}
	if !validation.IsValidEmail(in.BrokerEmail) {
		return nil, apperrors.Validation("broker_email is invalid")
	}

	var coi *domain.GeneratedCOI
	var prevBrokerEmail string
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusAwaitingBrokerInfo {
			return apperrors.Validation("COI is not awaiting broker info")
		}
		if coi.BrokerEmail != nil {
			prevBrokerEmail = *coi.BrokerEmail
		}

		token := randomHex(32)
		now := time.Now()
		expires := now.Add(s.tokenTTL())

		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			req := &domain.BrokerUploadRequest{
				COIID:       coi.ID,
				SentDate:    &now,
				Status:      domain.UploadPending,
				UploadToken: &token,
			}
			if err := tx.Create(req).Error; err != nil {
				return err
			}

			coi.Status = domain.StatusAwaitingBrokerUpload
			coi.BrokerName = &in.BrokerName
			coi.BrokerEmail = &in.BrokerEmail
			coi.BrokerPhone = &in.BrokerPhone
			coi.BrokerCompany = &in.BrokerCompany
			coi.COIToken = &token
			coi.TokenExpiresAt = &expires
			coi.BrokerNotifiedDate = &now
			coi.UploadRequestID = &req.ID
			if in.SampleCOIPDFURL != "" {
				coi.SampleCOIPDFURL = &in.SampleCOIPDFURL
			}
			return tx.Save(coi).Error
		})
	})
	if err != nil {
		metrics.RecordTransition("request_broker_info", "rejected")
		return nil, err
	}
	metrics.RecordTransition("request_broker_info", "ok")

	var warnings []string
	sample := ""
	if coi.SampleCOIPDFURL != nil {
		sample = *coi.SampleCOIPDFURL
	}
	companyName := s.subCompanyName(ctx, coi)
	warnings = appendWarning(warnings, s.notify("broker upload request", func(nctx context.Context) error {
		return s.Sender.SendBrokerUploadRequest(nctx, in.BrokerEmail, companyName, s.uploadLink(*coi.COIToken), sample)
	}))
	warnings = append(warnings, s.dispatchBrokerChange(ctx, broker.Evaluate(prevBrokerEmail, in.BrokerEmail), companyName)...)
	return &Result{COI: coi, Warnings: warnings}, nil
}

// BrokerUploadInput is the broker's submission.
type BrokerUploadInput struct {
	DocumentURL    string `json:"document_url"`
	NeedsSignature bool   `json:"needs_signature"`
}

// BrokerUpload moves awaiting_broker_upload (or deficiency_pending, for a
// correction) → awaiting_admin_review, or → awaiting_broker_signature when
// the submitted document still needs the broker's signature.
func (s *Service) BrokerUpload(ctx context.Context, coiID uuid.UUID, in BrokerUploadInput) (*Result, error) {
	if strings.TrimSpace(in.DocumentURL) == "" {
		return nil, apperrors.Validation("document_url is required, at least one uploaded document reference")
	}

	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		switch domain.NormalizeStatus(coi.Status) {
		case domain.StatusAwaitingBrokerUpload, domain.StatusDeficiencyPending:
		default:
			return apperrors.Validation("COI is not awaiting a broker upload")
		}

		now := time.Now()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if in.NeedsSignature {
				coi.Status = domain.StatusAwaitingBrokerSignature
			} else {
				coi.Status = domain.StatusAwaitingAdminReview
			}
			coi.UploadedForReviewDate = &now
			if coi.UploadRequestID != nil {
				if err := tx.Model(&domain.BrokerUploadRequest{}).
					Where("id = ?", *coi.UploadRequestID).
					Updates(map[string]interface{}{"status": domain.UploadUploaded, "document_url": in.DocumentURL}).Error; err != nil {
					return err
				}
			}
			if err := tx.Save(coi).Error; err != nil {
				return err
			}
			return refreshSubCache(tx, coi)
		})
	})
	if err != nil {
		metrics.RecordTransition("broker_upload", "rejected")
		return nil, err
	}
	metrics.RecordTransition("broker_upload", "ok")
	return &Result{COI: coi}, nil
}

// BrokerSign moves awaiting_broker_signature → awaiting_admin_review.
func (s *Service) BrokerSign(ctx context.Context, coiID uuid.UUID) (*Result, error) {
	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusAwaitingBrokerSignature {
			return apperrors.Validation("COI is not awaiting a broker signature")
		}
		coi.Status = domain.StatusAwaitingAdminReview
		return s.DB.WithContext(ctx).Save(coi).Error
	})
	if err != nil {
		metrics.RecordTransition("broker_sign", "rejected")
		return nil, err
	}
	metrics.RecordTransition("broker_sign", "ok")
	return &Result{COI: coi}, nil
}

// ApproveInput carries the admin's review outcome for an approval.
type ApproveInput struct {
	Override               bool       `json:"override"` // approve despite open compliance issues
	GLExpirationDate       *time.Time `json:"gl_expiration_date"`
	AutoExpirationDate     *time.Time `json:"auto_expiration_date"`
	UmbrellaExpirationDate *time.Time `json:"umbrella_expiration_date"`
	WCExpirationDate       *time.Time `json:"wc_expiration_date"`
	Notes                  *string    `json:"notes"`
}

// Approve moves awaiting_admin_review → active. Open compliance issues block
// approval unless the admin overrides explicitly. Recording the new
// expiration dates re-arms renewal verification for the cycle they open.
func (s *Service) Approve(ctx context.Context, act actor.Context, coiID uuid.UUID, in ApproveInput) (*Result, error) {
	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusAwaitingAdminReview {
			return apperrors.Validation("COI is not awaiting admin review")
		}
		issues := decodeIssues(coi.ComplianceIssues)
		if len(issues) > 0 && !in.Override {
			return apperrors.Validation("compliance_issues must be resolved or explicitly overridden")
		}
		docURL := s.pendingDocumentURL(ctx, coi)
		if docURL == "" {
			return apperrors.Validation("no uploaded document on file for this COI")
		}
		// Historical COIs may coexist on a pairing, but only one may be
		// active. A deficiency cycle left behind by an earlier certificate
		// must not activate alongside its replacement.
		var otherActive int64
		if err := s.DB.WithContext(ctx).Model(&domain.GeneratedCOI{}).
			Where("project_id = ? AND subcontractor_id = ? AND status = ? AND id <> ?",
				coi.ProjectID, coi.SubcontractorID, domain.StatusActive, coi.ID).
			Count(&otherActive).Error; err != nil {
			return err
		}
		if otherActive > 0 {
			return apperrors.Conflict("another COI is already active for this subcontractor on this project")
		}

		now := time.Now()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			coi.Status = domain.StatusActive
			coi.ComplianceStatus = domain.ComplianceCompliant
			coi.FirstCOIURL = &docURL
			coi.ReviewedBy = &act.ID
			coi.ReviewDate = &now
			if in.Override {
				coi.ComplianceIssues = nil
			}
			if in.GLExpirationDate != nil {
				coi.GLExpirationDate = in.GLExpirationDate
			}
			if in.AutoExpirationDate != nil {
				coi.AutoExpirationDate = in.AutoExpirationDate
			}
			if in.UmbrellaExpirationDate != nil {
				coi.UmbrellaExpirationDate = in.UmbrellaExpirationDate
			}
			if in.WCExpirationDate != nil {
				coi.WCExpirationDate = in.WCExpirationDate
			}
			// New dates open a fresh renewal cycle: verification re-arms.
			if in.GLExpirationDate != nil || in.AutoExpirationDate != nil ||
				in.UmbrellaExpirationDate != nil || in.WCExpirationDate != nil {
				coi.BrokerVerifiedAtRenewal = false
				coi.RenewalNoticeDate = nil
			}
			result, _ := json.Marshal(map[string]interface{}{"override": in.Override})
			if err := auditCheck(tx, coi, "admin_review", "approved", result, act.ID, in.Notes); err != nil {
				return err
			}
			if coi.UploadRequestID != nil {
				if err := tx.Model(&domain.BrokerUploadRequest{}).
					Where("id = ?", *coi.UploadRequestID).
					Update("status", domain.UploadApproved).Error; err != nil {
					return err
				}
			}
			if err := tx.Save(coi).Error; err != nil {
				return err
			}
			return refreshSubCache(tx, coi)
		})
	})
	if err != nil {
		metrics.RecordTransition("approve", "rejected")
		return nil, err
	}
	metrics.RecordTransition("approve", "ok")
	return &Result{COI: coi}, nil
}

// RejectInput carries the deficiency details.
type RejectInput struct {
	DeficiencyMessage string   `json:"deficiency_message"`
	ComplianceIssues  []string `json:"compliance_issues"`
}

// Reject moves awaiting_admin_review → deficiency_pending and notifies the
// broker with the deficiency message and the upload link for resubmission.
func (s *Service) Reject(ctx context.Context, act actor.Context, coiID uuid.UUID, in RejectInput) (*Result, error) {
	if strings.TrimSpace(in.DeficiencyMessage) == "" {
		return nil, apperrors.Validation("deficiency_message is required")
	}

	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusAwaitingAdminReview {
			return apperrors.Validation("COI is not awaiting admin review")
		}

		now := time.Now()
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			coi.Status = domain.StatusDeficiencyPending
			coi.ComplianceStatus = domain.ComplianceNonCompliant
			coi.DeficiencyMessage = &in.DeficiencyMessage
			if len(in.ComplianceIssues) > 0 {
				raw, _ := json.Marshal(in.ComplianceIssues)
				coi.ComplianceIssues = raw
			}
			coi.ReviewedBy = &act.ID
			coi.ReviewDate = &now
			result, _ := json.Marshal(map[string]interface{}{"issues": in.ComplianceIssues})
			if err := auditCheck(tx, coi, "admin_review", "rejected", result, act.ID, &in.DeficiencyMessage); err != nil {
				return err
			}
			if coi.UploadRequestID != nil {
				if err := tx.Model(&domain.BrokerUploadRequest{}).
					Where("id = ?", *coi.UploadRequestID).
					Update("status", domain.UploadNeedsCorrection).Error; err != nil {
					return err
				}
			}
			if err := tx.Save(coi).Error; err != nil {
				return err
			}
			return refreshSubCache(tx, coi)
		})
	})
	if err != nil {
		metrics.RecordTransition("reject", "rejected")
		return nil, err
	}
	metrics.RecordTransition("reject", "ok")

	var warnings []string
	if coi.BrokerEmail != nil && coi.COIToken != nil {
		companyName := s.subCompanyName(ctx, coi)
		warnings = appendWarning(warnings, s.notify("deficiency notice", func(nctx context.Context) error {
			return s.Sender.SendDeficiencyNotice(nctx, *coi.BrokerEmail, companyName, in.DeficiencyMessage, s.uploadLink(*coi.COIToken))
		}))
	}
	return &Result{COI: coi, Warnings: warnings}, nil
}

// Replace pulls an active COI back to awaiting_admin_review. The broker
// relationship stands, only the document needs re-vetting, so this never
// routes through awaiting_broker_upload — and never directly back to active,
// whatever status hints the caller supplies. The reason and requester are
// audited, and every GC on the project is told re-review is required.
func (s *Service) Replace(ctx context.Context, act actor.Context, coiID uuid.UUID, reason string) (*Result, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("reason is required")
	}

	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusActive {
			return apperrors.Validation("only an active COI can be replaced")
		}
		if s.monitor().VerificationRequired(coi, time.Now()) {
			return apperrors.Validation("renewal verification is required before further changes to this COI")
		}

		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			coi.Status = domain.StatusAwaitingAdminReview
			coi.ComplianceStatus = domain.CompliancePending
			result, _ := json.Marshal(map[string]interface{}{"reason": reason, "requested_by": act.ID, "requested_by_role": act.Role})
			if err := auditCheck(tx, coi, "replace", "requested", result, act.ID, &reason); err != nil {
				return err
			}
			if err := tx.Save(coi).Error; err != nil {
				return err
			}
			return refreshSubCache(tx, coi)
		})
	})
	if err != nil {
		metrics.RecordTransition("replace", "rejected")
		return nil, err
	}
	metrics.RecordTransition("replace", "ok")

	// Post-commit: GC notification is best-effort, failure must not roll back
	// the committed transition.
	warnings := s.notifyProjectGCs(ctx, coi, reason)
	return &Result{COI: coi, Warnings: warnings}, nil
}

// UpdateBrokerInput carries new broker contact fields for a save.
type UpdateBrokerInput struct {
	BrokerName    *string `json:"broker_name"`
	BrokerEmail   *string `json:"broker_email"`
	BrokerPhone   *string `json:"broker_phone"`
	BrokerCompany *string `json:"broker_company"`
}

// UpdateBroker saves broker contact fields on a COI, in any state. The
// reassignment decision is made against the stored email before the write:
// a first assignment notifies only the incoming broker, a change notifies
// both, an identical save notifies no one.
func (s *Service) UpdateBroker(ctx context.Context, act actor.Context, coiID uuid.UUID, in UpdateBrokerInput) (*Result, error) {
	if in.BrokerEmail != nil && strings.TrimSpace(*in.BrokerEmail) != "" && !validation.IsValidEmail(*in.BrokerEmail) {
		return nil, apperrors.Validation("broker_email is invalid")
	}

	var coi *domain.GeneratedCOI
	var decision broker.Decision
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if s.monitor().VerificationRequired(coi, time.Now()) {
			return apperrors.Validation("renewal verification is required before further changes to this COI")
		}

		prev := ""
		if coi.BrokerEmail != nil {
			prev = *coi.BrokerEmail
		}
		next := prev
		if in.BrokerEmail != nil {
			next = *in.BrokerEmail
		}
		decision = broker.Evaluate(prev, next)

		if in.BrokerName != nil {
			coi.BrokerName = in.BrokerName
		}
		if in.BrokerEmail != nil {
			coi.BrokerEmail = in.BrokerEmail
		}
		if in.BrokerPhone != nil {
			coi.BrokerPhone = in.BrokerPhone
		}
		if in.BrokerCompany != nil {
			coi.BrokerCompany = in.BrokerCompany
		}
		return s.DB.WithContext(ctx).Save(coi).Error
	})
	if err != nil {
		metrics.RecordTransition("update_broker", "rejected")
		return nil, err
	}
	metrics.RecordTransition("update_broker", "ok")

	warnings := s.dispatchBrokerChange(ctx, decision, s.subCompanyName(ctx, coi))
	return &Result{COI: coi, Warnings: warnings}, nil
}

// VerifyRenewalInput optionally records renewed policy dates alongside the
// verification.
type VerifyRenewalInput struct {
	GLExpirationDate       *time.Time `json:"gl_expiration_date"`
	AutoExpirationDate     *time.Time `json:"auto_expiration_date"`
	UmbrellaExpirationDate *time.Time `json:"umbrella_expiration_date"`
	WCExpirationDate       *time.Time `json:"wc_expiration_date"`
}

// VerifyRenewal is the explicit verification event for the current renewal
// cycle: it sets broker_verified_at_renewal and, when renewed dates are
// supplied, records them. Verification is single-use per cycle; the flag
// re-arms when the next cycle's dates are recorded at approval time.
func (s *Service) VerifyRenewal(ctx context.Context, act actor.Context, coiID uuid.UUID, in VerifyRenewalInput) (*Result, error) {
	var coi *domain.GeneratedCOI
	err := s.withLock(ctx, coiID, func() error {
		var err error
		coi, err = s.loadCOI(ctx, coiID)
		if err != nil {
			return err
		}
		if domain.NormalizeStatus(coi.Status) != domain.StatusActive {
			return apperrors.Validation("only an active COI can be verified for renewal")
		}
		if coi.BrokerVerifiedAtRenewal {
			return apperrors.Validation("this renewal cycle is already verified")
		}

		coi.BrokerVerifiedAtRenewal = true
		if in.GLExpirationDate != nil {
			coi.GLExpirationDate = in.GLExpirationDate
		}
		if in.AutoExpirationDate != nil {
			coi.AutoExpirationDate = in.AutoExpirationDate
		}
		if in.UmbrellaExpirationDate != nil {
			coi.UmbrellaExpirationDate = in.UmbrellaExpirationDate
		}
		if in.WCExpirationDate != nil {
			coi.WCExpirationDate = in.WCExpirationDate
		}
		return s.DB.WithContext(ctx).Save(coi).Error
	})
	if err != nil {
		metrics.RecordTransition("verify_renewal", "rejected")
		return nil, err
	}
	metrics.RecordTransition("verify_renewal", "ok")
	return &Result{COI: coi}, nil
}

// dispatchBrokerChange fires the notifications a broker save decision calls
// for.
func (s *Service) dispatchBrokerChange(ctx context.Context, d broker.Decision, companyName string) []string {
	var warnings []string
	if d.NotifyNew {
		warnings = appendWarning(warnings, s.notify("broker assigned", func(nctx context.Context) error {
			return s.Sender.SendBrokerAssigned(nctx, d.IncomingEmail, companyName)
		}))
	}
	if d.NotifyOld {
		warnings = appendWarning(warnings, s.notify("broker unassigned", func(nctx context.Context) error {
			return s.Sender.SendBrokerUnassigned(nctx, d.OutgoingEmail, companyName)
		}))
	}
	return warnings
}

// notifyProjectGCs tells every GC on the COI's project that re-review is
// required.
func (s *Service) notifyProjectGCs(ctx context.Context, coi *domain.GeneratedCOI, reason string) []string {
	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("id = ?", coi.ProjectID).First(&project).Error; err != nil {
		return nil
	}
	var gcs []domain.Contractor
	if err := s.DB.WithContext(ctx).
		Where("id = ? AND contractor_type = ?", project.GCID, domain.TypeGeneralContractor).
		Find(&gcs).Error; err != nil {
		return nil
	}
	subName := s.subCompanyName(ctx, coi)
	var warnings []string
	for _, gc := range gcs {
		if gc.Email == nil || *gc.Email == "" {
			continue
		}
		email := *gc.Email
		name := gc.CompanyName
		warnings = appendWarning(warnings, s.notify("replace re-review notice", func(nctx context.Context) error {
			return s.Sender.SendReplaceReviewNotice(nctx, email, name, subName, project.ProjectName, reason)
		}))
	}
	return warnings
}

// subCompanyName resolves the display name for the COI's subcontractor.
func (s *Service) subCompanyName(ctx context.Context, coi *domain.GeneratedCOI) string {
	var ps domain.ProjectSubcontractor
	if err := s.DB.WithContext(ctx).Where("id = ?", coi.SubcontractorID).First(&ps).Error; err != nil {
		return "Subcontractor"
	}
	return ps.CompanyName
}

// pendingDocumentURL finds the document submitted in the current cycle.
func (s *Service) pendingDocumentURL(ctx context.Context, coi *domain.GeneratedCOI) string {
	if coi.UploadRequestID != nil {
		var req domain.BrokerUploadRequest
		if err := s.DB.WithContext(ctx).Where("id = ?", *coi.UploadRequestID).First(&req).Error; err == nil {
			if req.DocumentURL != nil && *req.DocumentURL != "" {
				return *req.DocumentURL
			}
		}
	}
	// A replace cycle re-reviews the document already on file.
	if coi.FirstCOIURL != nil {
		return *coi.FirstCOIURL
	}
	return ""
}

func decodeIssues(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
