package contractors

import (
	ctrsvc "coitrack-backend/internal/application/contractors"
	"coitrack-backend/internal/middleware"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles contractor handlers with dependencies.
type Handlers struct {
	Service *ctrsvc.Service
}

// UpdateBroker PATCH /api/v1/contractors/:id/broker — the global broker
// assignment for a subcontractor company.
func (h *Handlers) UpdateBroker(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	var in ctrsvc.UpdateBrokerInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "invalid request body", fiber.StatusBadRequest, nil)
	}
	contractor, warnings, err := h.Service.UpdateBroker(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		switch {
		case apperrors.IsValidation(err):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case apperrors.IsNotFound(err):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		default:
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	var meta interface{}
	if len(warnings) > 0 {
		meta = fiber.Map{"warnings": warnings}
	}
	return response.Success(c, "Broker updated", contractor, meta)
}
