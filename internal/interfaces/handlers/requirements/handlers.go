package requirements

import (
	"coitrack-backend/internal/application/matcher"
	reqsvc "coitrack-backend/internal/application/requirements"
	"coitrack-backend/internal/middleware"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles requirement handlers with dependencies.
type Handlers struct {
	Service *reqsvc.Service
	Matcher *matcher.Service
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

// Create POST /api/v1/requirements
func (h *Handlers) Create(c *fiber.Ctx) error {
	var in reqsvc.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "title and requirement_tier are required", fiber.StatusBadRequest, nil)
	}
	req, err := h.Service.Create(c.Context(), middleware.GetActor(c), in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.SuccessCreated(c, "Requirement created", req, nil)
}

// Update PATCH /api/v1/requirements/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var in reqsvc.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "invalid request body", fiber.StatusBadRequest, nil)
	}
	req, err := h.Service.Update(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Requirement updated", req, nil)
}

// Delete DELETE /api/v1/requirements/:id
func (h *Handlers) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.Delete(c.Context(), middleware.GetActor(c), id); err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Requirement deleted", fiber.Map{"id": id}, nil)
}

// ListForProject GET /api/v1/projects/:id/requirements
func (h *Handlers) ListForProject(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	reqs, err := h.Service.ListForProject(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project requirements", reqs, fiber.Map{"count": len(reqs)})
}

// MatchForSub GET /api/v1/projects/:id/subcontractors/:subID/requirements —
// the matcher output: documents applicable to this subcontractor, grouped by
// tier.
func (h *Handlers) MatchForSub(c *fiber.Ctx) error {
	projectID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	subID, err := uuid.Parse(c.Params("subID"))
	if err != nil {
		return response.Error(c, "subID must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	groups, err := h.Matcher.RequirementsFor(c.Context(), projectID, subID)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Applicable requirements", groups, nil)
}
