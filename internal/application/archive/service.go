package archive

import (
	"context"
	"time"

	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const cascadeBatchSize = 200

// Service soft-deletes the Contractor → Project → ProjectSubcontractor graph.
// Archiving a GC cascades down; unarchive never cascades, each child must be
// restored individually. That asymmetry is policy, not an oversight: it
// keeps a GC restore from resurrecting child records archived for their own
// reasons. archived_at doubles as the idempotency marker, so a partially
// applied cascade can be retried without touching already-archived rows.
type Service struct {
	DB *gorm.DB
}

// CascadeResult reports what one archive call touched.
type CascadeResult struct {
	ContractorsArchived           int64 `json:"contractors_archived"`
	ProjectsArchived              int64 `json:"projects_archived"`
	ProjectSubcontractorsArchived int64 `json:"project_subcontractors_archived"`
}

// UnarchiveResult reports the restored record plus the children left
// archived, so operators can see what a GC restore did not touch.
type UnarchiveResult struct {
	Restored                 bool  `json:"restored"`
	ProjectsStillArchived    int64 `json:"projects_still_archived"`
	ProjectSubsStillArchived int64 `json:"project_subcontractors_still_archived"`
}

func stampValues(act actor.Context, reason string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"archived_at":     now,
		"archived_by":     act.ID,
		"archived_reason": reason,
	}
}

// ArchiveGC archives a general contractor and cascades over its projects and
// their subcontractor links, one bounded batch of projects at a time.
func (s *Service) ArchiveGC(ctx context.Context, act actor.Context, gcID uuid.UUID, reason string) (*CascadeResult, error) {
	var gc domain.Contractor
	if err := s.DB.WithContext(ctx).Where("id = ?", gcID).First(&gc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Contractor not found")
		}
		return nil, err
	}
	if !gc.IsGC() {
		return nil, apperrors.Validation("contractor is not a general contractor, archive it directly as a subcontractor record")
	}

	now := time.Now()
	res := &CascadeResult{}

	if !gc.Archived() {
		if err := s.DB.WithContext(ctx).Model(&domain.Contractor{}).
			Where("id = ? AND archived_at IS NULL", gcID).
			Updates(stampValues(act, reason, now)).Error; err != nil {
			return nil, err
		}
		res.ContractorsArchived = 1
	}

	// Cascade per project so a partial failure is retryable per-child; rows
	// already stamped are skipped by the archived_at predicate.
	var projects []domain.Project
	err := s.DB.WithContext(ctx).
		Where("gc_id = ? AND archived_at IS NULL", gcID).
		FindInBatches(&projects, cascadeBatchSize, func(_ *gorm.DB, _ int) error {
			for _, p := range projects {
				n, err := s.archiveProjectChildren(ctx, act, p.ID, reason, now)
				if err != nil {
					return err
				}
				res.ProjectSubcontractorsArchived += n

				// Stamp through a fresh handle; reusing the batch query's
				// statement drags its WHERE clause into the UPDATE.
				out := s.DB.WithContext(ctx).Model(&domain.Project{}).
					Where("id = ? AND archived_at IS NULL", p.ID).
					Updates(stampValues(act, reason, now))
				if out.Error != nil {
					return out.Error
				}
				res.ProjectsArchived += out.RowsAffected
			}
			return nil
		}).Error
	if err != nil {
		return nil, err
	}

	log.Info().Str("gc_id", gcID.String()).
		Int64("projects", res.ProjectsArchived).
		Int64("project_subs", res.ProjectSubcontractorsArchived).
		Msg("GC archive cascade applied")
	return res, nil
}

func (s *Service) archiveProjectChildren(ctx context.Context, act actor.Context, projectID uuid.UUID, reason string, now time.Time) (int64, error) {
	out := s.DB.WithContext(ctx).Model(&domain.ProjectSubcontractor{}).
		Where("project_id = ? AND archived_at IS NULL", projectID).
		Updates(stampValues(act, reason, now))
	return out.RowsAffected, out.Error
}

// UnarchiveGC restores only the GC record. Children stay archived; the
// result reports how many remain so the caller can surface it.
func (s *Service) UnarchiveGC(ctx context.Context, act actor.Context, gcID uuid.UUID) (*UnarchiveResult, error) {
	var gc domain.Contractor
	if err := s.DB.WithContext(ctx).Where("id = ?", gcID).First(&gc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Contractor not found")
		}
		return nil, err
	}
	if !gc.Archived() {
		return nil, apperrors.Validation("contractor is not archived")
	}

	if err := s.clearStamp(ctx, &domain.Contractor{}, gcID).Error; err != nil {
		return nil, err
	}

	res := &UnarchiveResult{Restored: true}
	s.DB.WithContext(ctx).Model(&domain.Project{}).
		Where("gc_id = ? AND archived_at IS NOT NULL", gcID).
		Count(&res.ProjectsStillArchived)
	s.DB.WithContext(ctx).Model(&domain.ProjectSubcontractor{}).
		Joins("JOIN projects ON projects.id = project_subcontractors.project_id").
		Where("projects.gc_id = ? AND project_subcontractors.archived_at IS NOT NULL", gcID).
		Count(&res.ProjectSubsStillArchived)
	return res, nil
}

// ArchiveProject archives a single project, without touching its GC or its
// subcontractor links.
func (s *Service) ArchiveProject(ctx context.Context, act actor.Context, projectID uuid.UUID, reason string) error {
	var p domain.Project
	if err := s.DB.WithContext(ctx).Where("id = ?", projectID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("Project not found")
		}
		return err
	}
	if p.Archived() {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&domain.Project{}).
		Where("id = ? AND archived_at IS NULL", projectID).
		Updates(stampValues(act, reason, time.Now())).Error
}

// UnarchiveProject restores a single project.
func (s *Service) UnarchiveProject(ctx context.Context, act actor.Context, projectID uuid.UUID) error {
	var p domain.Project
	if err := s.DB.WithContext(ctx).Where("id = ?", projectID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("Project not found")
		}
		return err
	}
	if !p.Archived() {
		return apperrors.Validation("project is not archived")
	}
	return s.clearStamp(ctx, &domain.Project{}, projectID).Error
}

// ArchiveProjectSub archives a single subcontractor link.
func (s *Service) ArchiveProjectSub(ctx context.Context, act actor.Context, psID uuid.UUID, reason string) error {
	var ps domain.ProjectSubcontractor
	if err := s.DB.WithContext(ctx).Where("id = ?", psID).First(&ps).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("Project subcontractor not found")
		}
		return err
	}
	if ps.Archived() {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&domain.ProjectSubcontractor{}).
		Where("id = ? AND archived_at IS NULL", psID).
		Updates(stampValues(act, reason, time.Now())).Error
}

// UnarchiveProjectSub restores a single subcontractor link.
func (s *Service) UnarchiveProjectSub(ctx context.Context, act actor.Context, psID uuid.UUID) error {
	var ps domain.ProjectSubcontractor
	if err := s.DB.WithContext(ctx).Where("id = ?", psID).First(&ps).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("Project subcontractor not found")
		}
		return err
	}
	if !ps.Archived() {
		return apperrors.Validation("project subcontractor is not archived")
	}
	return s.clearStamp(ctx, &domain.ProjectSubcontractor{}, psID).Error
}

func (s *Service) clearStamp(ctx context.Context, model interface{}, id uuid.UUID) *gorm.DB {
	return s.DB.WithContext(ctx).Model(model).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"archived_at":     nil,
			"archived_by":     nil,
			"archived_reason": nil,
		})
}

// TreeNode is one entry in an archive tree view.
type TreeNode struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	Archived   bool        `json:"archived"`
	ArchivedAt *time.Time  `json:"archived_at,omitempty"`
	Children   []*TreeNode `json:"children,omitempty"`
}

// Tree returns the GC's project/subcontractor graph with archive flags, for
// the operator-facing archive view.
func (s *Service) Tree(ctx context.Context, gcID uuid.UUID) (*TreeNode, error) {
	var gc domain.Contractor
	if err := s.DB.WithContext(ctx).Where("id = ?", gcID).First(&gc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Contractor not found")
		}
		return nil, err
	}
	root := &TreeNode{ID: gc.ID, Name: gc.CompanyName, Kind: "contractor", Archived: gc.Archived(), ArchivedAt: gc.ArchivedAt}

	var projects []domain.Project
	if err := s.DB.WithContext(ctx).Where("gc_id = ?", gcID).Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, err
	}
	for _, p := range projects {
		pn := &TreeNode{ID: p.ID, Name: p.ProjectName, Kind: "project", Archived: p.Archived(), ArchivedAt: p.ArchivedAt}
		var subs []domain.ProjectSubcontractor
		if err := s.DB.WithContext(ctx).Where("project_id = ?", p.ID).Order("created_at ASC").Find(&subs).Error; err != nil {
			return nil, err
		}
		for _, ps := range subs {
			pn.Children = append(pn.Children, &TreeNode{
				ID: ps.ID, Name: ps.CompanyName, Kind: "project_subcontractor",
				Archived: ps.Archived(), ArchivedAt: ps.ArchivedAt,
			})
		}
		root.Children = append(root.Children, pn)
	}
	return root, nil
}
