package compliance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"coitrack-backend/internal/application/emails"
	"coitrack-backend/internal/application/renewal"
	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/locks"
	"coitrack-backend/internal/metrics"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const defaultNotifyTimeout = 10 * time.Second
const defaultTokenTTL = 90 * 24 * time.Hour

// Service is the COI workflow engine. Every event method evaluates its
// guards before touching the database, applies all mutations for the event
// in a single transaction under the per-COI lock, and dispatches
// notifications only after the transaction commits. Notification failures
// come back as warnings, never as errors.
type Service struct {
	DB      *gorm.DB
	Lock    *locks.COILock
	Sender  emails.Sender
	Monitor *renewal.Monitor

	FrontendURL    string        // base for broker upload links
	UploadsBaseURL string        // base for stored document URLs
	TokenTTL       time.Duration // broker token lifetime, default 90 days
	NotifyTimeout  time.Duration // per-notification bound, default 10s
}

func (s *Service) tokenTTL() time.Duration {
	if s.TokenTTL <= 0 {
		return defaultTokenTTL
	}
	return s.TokenTTL
}

func (s *Service) notifyTimeout() time.Duration {
	if s.NotifyTimeout <= 0 {
		return defaultNotifyTimeout
	}
	return s.NotifyTimeout
}

func (s *Service) monitor() *renewal.Monitor {
	if s.Monitor == nil {
		return &renewal.Monitor{}
	}
	return s.Monitor
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// uploadLink builds the broker-facing link for a token.
func (s *Service) uploadLink(token string) string {
	return s.FrontendURL + "/broker/upload?token=" + token
}

// withLock runs fn while holding the transition lock for the COI.
func (s *Service) withLock(ctx context.Context, coiID uuid.UUID, fn func() error) error {
	if s.Lock != nil {
		if err := s.Lock.Acquire(ctx, coiID.String()); err != nil {
			return err
		}
		defer s.Lock.Release(ctx, coiID.String())
	}
	return fn()
}

// loadCOI fetches a COI or returns a NotFoundError.
func (s *Service) loadCOI(ctx context.Context, coiID uuid.UUID) (*domain.GeneratedCOI, error) {
	var coi domain.GeneratedCOI
	if err := s.DB.WithContext(ctx).Where("id = ?", coiID).First(&coi).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("COI not found")
		}
		return nil, err
	}
	return &coi, nil
}

// notify runs one notification with a bounded timeout. On failure it logs,
// bumps the failure counter and returns a warning string for the caller.
// The transition that preceded it is already committed and stays committed.
func (s *Service) notify(name string, fn func(ctx context.Context) error) string {
	if s.Sender == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout())
	defer cancel()
	if err := fn(ctx); err != nil {
		metrics.NotificationFailuresTotal.Inc()
		nf := &apperrors.NotificationFailure{Message: name + " notification failed", Err: err}
		log.Warn().Err(err).Str("notification", name).Msg("notification dispatch failed")
		return nf.Error()
	}
	return ""
}

// appendWarning keeps the warning list free of empty entries.
func appendWarning(warnings []string, w string) []string {
	if w == "" {
		return warnings
	}
	return append(warnings, w)
}

// ProjectionStatus derives the denormalized ProjectSubcontractor compliance
// cache from the authoritative COI state. The cache is never edited
// directly.
func ProjectionStatus(coi *domain.GeneratedCOI) string {
	switch coi.Status {
	case domain.StatusActive:
		if coi.ComplianceStatus == domain.ComplianceCompliant {
			return domain.ComplianceCompliant
		}
		return domain.CompliancePending
	case domain.StatusDeficiencyPending:
		return domain.ComplianceNonCompliant
	default:
		return domain.CompliancePending
	}
}

// refreshSubCache recomputes the join row's compliance_status from the COI.
func refreshSubCache(tx *gorm.DB, coi *domain.GeneratedCOI) error {
	status := ProjectionStatus(coi)
	return tx.Model(&domain.ProjectSubcontractor{}).
		Where("id = ?", coi.SubcontractorID).
		Update("compliance_status", status).Error
}

// auditCheck writes the ComplianceCheck row for a review or replace event
// and points the COI at it.
func auditCheck(tx *gorm.DB, coi *domain.GeneratedCOI, checkType, status string, result []byte, checkedBy string, notes *string) error {
	check := &domain.ComplianceCheck{
		COIID:     coi.ID,
		CheckType: checkType,
		Status:    status,
		Result:    result,
		CheckedBy: &checkedBy,
		Notes:     notes,
	}
	if err := tx.Create(check).Error; err != nil {
		return err
	}
	coi.ComplianceCheckID = &check.ID
	return nil
}
