package requirements

import (
	"context"
	"encoding/json"
	"strings"

	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service manages project insurance requirement documents.
type Service struct {
	DB *gorm.DB
}

// CreateInput is the payload for a new requirement document.
type CreateInput struct {
	ProjectID        uuid.UUID `json:"project_id"`
	Title            string    `json:"title"`
	DocumentURL      *string   `json:"document_url"`
	RequirementTier  int       `json:"requirement_tier"`
	ApplicableTrades []string  `json:"applicable_trades"`
}

// Create validates the tier at write time and stores the requirement.
func (s *Service) Create(ctx context.Context, act actor.Context, in CreateInput) (*domain.ProjectInsuranceRequirement, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperrors.Validation("title is required")
	}
	if err := domain.ValidateTier(in.RequirementTier); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var project domain.Project
	if err := s.DB.WithContext(ctx).Where("id = ?", in.ProjectID).First(&project).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Project not found")
		}
		return nil, err
	}
	if project.Archived() {
		return nil, apperrors.NotFound("Project is archived")
	}

	req := &domain.ProjectInsuranceRequirement{
		ProjectID:       in.ProjectID,
		Title:           strings.TrimSpace(in.Title),
		DocumentURL:     in.DocumentURL,
		RequirementTier: in.RequirementTier,
	}
	if in.ApplicableTrades != nil {
		raw, _ := json.Marshal(in.ApplicableTrades)
		req.ApplicableTrades = raw
	}
	if err := s.DB.WithContext(ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

// UpdateInput applies admin edits; nil fields are left untouched.
type UpdateInput struct {
	Title            *string   `json:"title"`
	DocumentURL      *string   `json:"document_url"`
	RequirementTier  *int      `json:"requirement_tier"`
	ApplicableTrades *[]string `json:"applicable_trades"`
}

// Update edits a requirement. Tier changes revalidate the 1..3 bound.
func (s *Service) Update(ctx context.Context, act actor.Context, id uuid.UUID, in UpdateInput) (*domain.ProjectInsuranceRequirement, error) {
	var req domain.ProjectInsuranceRequirement
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Requirement not found")
		}
		return nil, err
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, apperrors.Validation("title is required")
		}
		req.Title = strings.TrimSpace(*in.Title)
	}
	if in.RequirementTier != nil {
		if err := domain.ValidateTier(*in.RequirementTier); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
		req.RequirementTier = *in.RequirementTier
	}
	if in.DocumentURL != nil {
		req.DocumentURL = in.DocumentURL
	}
	if in.ApplicableTrades != nil {
		raw, _ := json.Marshal(*in.ApplicableTrades)
		req.ApplicableTrades = raw
	}

	if err := s.DB.WithContext(ctx).Save(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// Delete soft-deletes a requirement.
func (s *Service) Delete(ctx context.Context, act actor.Context, id uuid.UUID) error {
	out := s.DB.WithContext(ctx).Delete(&domain.ProjectInsuranceRequirement{}, "id = ?", id)
	if out.Error != nil {
		return out.Error
	}
	if out.RowsAffected == 0 {
		return apperrors.NotFound("Requirement not found")
	}
	return nil
}

// ListForProject returns a project's active requirements in tier order.
func (s *Service) ListForProject(ctx context.Context, projectID uuid.UUID) ([]domain.ProjectInsuranceRequirement, error) {
	var reqs []domain.ProjectInsuranceRequirement
	err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("requirement_tier ASC, created_at ASC").
		Find(&reqs).Error
	return reqs, err
}
