package archive

import (
	archsvc "coitrack-backend/internal/application/archive"
	"coitrack-backend/internal/middleware"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles archive cascade handlers with dependencies.
type Handlers struct {
	Service *archsvc.Service
}

func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case apperrors.IsValidation(err):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case apperrors.IsNotFound(err):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	default:
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
}

func parseReason(c *fiber.Ctx) string {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&body)
	return body.Reason
}

// ArchiveContractor POST /api/v1/contractors/:id/archive — cascades over the
// GC's projects and their subcontractor links.
func (h *Handlers) ArchiveContractor(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.ArchiveGC(c.Context(), middleware.GetActor(c), id, parseReason(c))
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Contractor archived", res, nil)
}

// UnarchiveContractor POST /api/v1/contractors/:id/unarchive — restores the
// GC only; children stay archived and the response says how many remain.
func (h *Handlers) UnarchiveContractor(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.UnarchiveGC(c.Context(), middleware.GetActor(c), id)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Contractor restored; archived children are not restored automatically", res, nil)
}

// ArchiveProject POST /api/v1/projects/:id/archive
func (h *Handlers) ArchiveProject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.ArchiveProject(c.Context(), middleware.GetActor(c), id, parseReason(c)); err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project archived", fiber.Map{"id": id}, nil)
}

// UnarchiveProject POST /api/v1/projects/:id/unarchive
func (h *Handlers) UnarchiveProject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.UnarchiveProject(c.Context(), middleware.GetActor(c), id); err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project restored", fiber.Map{"id": id}, nil)
}

// ArchiveProjectSub POST /api/v1/project-subcontractors/:id/archive
func (h *Handlers) ArchiveProjectSub(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.ArchiveProjectSub(c.Context(), middleware.GetActor(c), id, parseReason(c)); err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project subcontractor archived", fiber.Map{"id": id}, nil)
}

// UnarchiveProjectSub POST /api/v1/project-subcontractors/:id/unarchive
func (h *Handlers) UnarchiveProjectSub(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.UnarchiveProjectSub(c.Context(), middleware.GetActor(c), id); err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project subcontractor restored", fiber.Map{"id": id}, nil)
}

// Tree GET /api/v1/contractors/:id/archive-tree
func (h *Handlers) Tree(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	tree, err := h.Service.Tree(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Archive tree", tree, nil)
}
