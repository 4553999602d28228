package contractors

import (
	"context"
	"strings"
	"time"

	"coitrack-backend/internal/application/broker"
	"coitrack-backend/internal/application/emails"
	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service covers contractor-level operations the workflow core owns: the
// global (not project-specific) broker assignment.
type Service struct {
	DB            *gorm.DB
	Sender        emails.Sender
	NotifyTimeout time.Duration
}

// UpdateBrokerInput carries global broker contact fields.
type UpdateBrokerInput struct {
	BrokerName    *string `json:"broker_name"`
	BrokerEmail   *string `json:"broker_email"`
	BrokerPhone   *string `json:"broker_phone"`
	BrokerCompany *string `json:"broker_company"`
}

// UpdateBroker saves the contractor's global broker fields. The assignment
// decision compares against the stored email before the write: first
// assignment notifies the new broker only, a change notifies both sides,
// and an identical save fires nothing.
func (s *Service) UpdateBroker(ctx context.Context, act actor.Context, contractorID uuid.UUID, in UpdateBrokerInput) (*domain.Contractor, []string, error) {
	if in.BrokerEmail != nil && strings.TrimSpace(*in.BrokerEmail) != "" && !validation.IsValidEmail(*in.BrokerEmail) {
		return nil, nil, apperrors.Validation("broker_email is invalid")
	}

	var c domain.Contractor
	if err := s.DB.WithContext(ctx).Where("id = ?", contractorID).First(&c).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, apperrors.NotFound("Contractor not found")
		}
		return nil, nil, err
	}
	if c.Archived() {
		return nil, nil, apperrors.NotFound("Contractor is archived")
	}

	prev := ""
	if c.BrokerEmail != nil {
		prev = *c.BrokerEmail
	}
	next := prev
	if in.BrokerEmail != nil {
		next = *in.BrokerEmail
	}
	decision := broker.Evaluate(prev, next)

	if in.BrokerName != nil {
		c.BrokerName = in.BrokerName
	}
	if in.BrokerEmail != nil {
		c.BrokerEmail = in.BrokerEmail
	}
	if in.BrokerPhone != nil {
		c.BrokerPhone = in.BrokerPhone
	}
	if in.BrokerCompany != nil {
		c.BrokerCompany = in.BrokerCompany
	}
	if err := s.DB.WithContext(ctx).Save(&c).Error; err != nil {
		return nil, nil, err
	}

	var warnings []string
	if s.Sender != nil && decision.Outcome != broker.NoChange {
		timeout := s.NotifyTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		nctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if decision.NotifyNew {
			if err := s.Sender.SendBrokerAssigned(nctx, decision.IncomingEmail, c.CompanyName); err != nil {
				log.Warn().Err(err).Msg("broker assigned notification failed")
				warnings = append(warnings, "broker assigned notification failed: "+err.Error())
			}
		}
		if decision.NotifyOld {
			if err := s.Sender.SendBrokerUnassigned(nctx, decision.OutgoingEmail, c.CompanyName); err != nil {
				log.Warn().Err(err).Msg("broker unassigned notification failed")
				warnings = append(warnings, "broker unassigned notification failed: "+err.Error())
			}
		}
	}
	return &c, warnings, nil
}
