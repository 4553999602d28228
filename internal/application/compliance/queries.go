package compliance

import (
	"context"
	"strings"
	"time"

	"coitrack-backend/internal/application/renewal"
	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GetCOI returns one COI by id.
func (s *Service) GetCOI(ctx context.Context, coiID uuid.UUID) (*domain.GeneratedCOI, error) {
	return s.loadCOI(ctx, coiID)
}

// FindByToken resolves a COI from a bearer token: exact match against the
// stored token, rejected when expired or unknown. Used by the public broker
// endpoints, which carry no login session.
func (s *Service) FindByToken(ctx context.Context, token string) (*domain.GeneratedCOI, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NotFound("invalid or expired access token")
	}
	var coi domain.GeneratedCOI
	if err := s.DB.WithContext(ctx).Where("coi_token = ?", token).First(&coi).Error; err != nil {
		return nil, apperrors.NotFound("invalid or expired access token")
	}
	if coi.COIToken == nil || *coi.COIToken != token {
		return nil, apperrors.NotFound("invalid or expired access token")
	}
	if coi.TokenExpiresAt != nil && time.Now().After(*coi.TokenExpiresAt) {
		return nil, apperrors.NotFound("invalid or expired access token")
	}
	return &coi, nil
}

// PendingCOIs lists every COI sitting in awaiting_admin_review, oldest
// upload first.
func (s *Service) PendingCOIs(ctx context.Context) ([]domain.GeneratedCOI, error) {
	var cois []domain.GeneratedCOI
	err := s.DB.WithContext(ctx).
		Where("status = ?", domain.StatusAwaitingAdminReview).
		Order("uploaded_for_review_date ASC").
		Find(&cois).Error
	return cois, err
}

// COIsForProject lists all COIs on a project.
func (s *Service) COIsForProject(ctx context.Context, projectID uuid.UUID) ([]domain.GeneratedCOI, error) {
	var cois []domain.GeneratedCOI
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&cois).Error
	return cois, err
}

// ExpirationStatus is the monitor's read of one active COI.
type ExpirationStatus struct {
	COIID                uuid.UUID  `json:"coi_id"`
	Band                 string     `json:"band"`
	DaysUntil            *int       `json:"days_until"`
	EarliestExpiration   *time.Time `json:"earliest_expiration"`
	VerificationRequired bool       `json:"verification_required"`
}

// ClassifyCOI computes the expiration band and verification gate for one COI.
func (s *Service) ClassifyCOI(coi *domain.GeneratedCOI, now time.Time) ExpirationStatus {
	st := ExpirationStatus{COIID: coi.ID, Band: renewal.BandCurrent}
	exp := renewal.EarliestExpiration(coi)
	if exp != nil {
		days := renewal.DaysUntil(*exp, now)
		st.DaysUntil = &days
		st.EarliestExpiration = exp
		st.Band = s.monitor().Classify(*exp, now)
	}
	st.VerificationRequired = s.monitor().VerificationRequired(coi, now)
	return st
}

// ExpirationSweep is the scheduled check: it classifies every active COI and
// asks the broker to verify renewal for each one newly inside the window.
// One notice per cycle, tracked by renewal_notice_date.
func (s *Service) ExpirationSweep(ctx context.Context, now time.Time) ([]ExpirationStatus, error) {
	var actives []domain.GeneratedCOI
	if err := s.DB.WithContext(ctx).Where("status = ?", domain.StatusActive).Find(&actives).Error; err != nil {
		return nil, err
	}

	statuses := make([]ExpirationStatus, 0, len(actives))
	for i := range actives {
		coi := &actives[i]
		st := s.ClassifyCOI(coi, now)
		statuses = append(statuses, st)

		if !st.VerificationRequired || coi.RenewalNoticeDate != nil {
			continue
		}
		if coi.BrokerEmail == nil || *coi.BrokerEmail == "" || st.EarliestExpiration == nil {
			continue
		}
		// No sender, no dispatch: leave the cycle unstamped so the notice
		// still goes out once one is configured.
		if s.Sender == nil {
			continue
		}
		subName := s.subCompanyName(ctx, coi)
		warning := s.notify("renewal verification request", func(nctx context.Context) error {
			return s.Sender.SendRenewalVerificationRequest(nctx, *coi.BrokerEmail, subName, *st.EarliestExpiration)
		})
		if warning != "" {
			continue // unstamped, next sweep retries via the collaborator
		}
		stamp := now
		if err := s.DB.WithContext(ctx).Model(coi).Update("renewal_notice_date", stamp).Error; err != nil {
			log.Warn().Err(err).Str("coi_id", coi.ID.String()).Msg("failed to stamp renewal notice")
		}
	}
	return statuses, nil
}
