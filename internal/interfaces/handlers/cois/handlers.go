package cois

import (
	"time"

	"coitrack-backend/internal/application/compliance"
	"coitrack-backend/internal/middleware"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles COI workflow handlers with dependencies.
type Handlers struct {
	Service *compliance.Service
}

func respondErr(c *fiber.Ctx, err error) error {
	switch {
	case apperrors.IsValidation(err):
		return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
	case apperrors.IsConflict(err):
		return response.Error(c, err.Error(), fiber.StatusConflict, nil)
	case apperrors.IsNotFound(err):
		return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
	default:
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
}

func resultMeta(warnings []string) interface{} {
	if len(warnings) == 0 {
		return nil
	}
	return fiber.Map{"warnings": warnings}
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, apperrors.Validation(param + " must be a valid uuid")
	}
	return id, nil
}

// Create POST /api/v1/cois
func (h *Handlers) Create(c *fiber.Ctx) error {
	var body struct {
		ProjectID            string `json:"project_id"`
		ProjectSubcontractor string `json:"project_subcontractor_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "project_id and project_subcontractor_id are required", fiber.StatusBadRequest, nil)
	}
	projectID, err := uuid.Parse(body.ProjectID)
	if err != nil {
		return response.Error(c, "project_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}
	psID, err := uuid.Parse(body.ProjectSubcontractor)
	if err != nil {
		return response.Error(c, "project_subcontractor_id must be a valid uuid", fiber.StatusBadRequest, nil)
	}

	coi, err := h.Service.CreateCOI(c.Context(), middleware.GetActor(c), projectID, psID)
	if err != nil {
		return respondErr(c, err)
	}
	return response.SuccessCreated(c, "COI created", coi, nil)
}

// RequestBrokerInfo POST /api/v1/cois/:id/request-broker-info
func (h *Handlers) RequestBrokerInfo(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.RequestBrokerInfoInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "broker_email is required", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.RequestBrokerInfo(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Broker notified", res.COI, resultMeta(res.Warnings))
}

// Approve POST /api/v1/cois/:id/approve
func (h *Handlers) Approve(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.ApproveInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Approve(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "COI approved", res.COI, resultMeta(res.Warnings))
}

// Reject POST /api/v1/cois/:id/reject
func (h *Handlers) Reject(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.RejectInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "deficiency_message is required", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Reject(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Deficiency recorded", res.COI, resultMeta(res.Warnings))
}

// Replace POST /api/v1/cois/:id/replace
func (h *Handlers) Replace(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "reason is required", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.Replace(c.Context(), middleware.GetActor(c), id, body.Reason)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "COI sent back for review", res.COI, resultMeta(res.Warnings))
}

// VerifyRenewal POST /api/v1/cois/:id/verify-renewal
func (h *Handlers) VerifyRenewal(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.VerifyRenewalInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.VerifyRenewal(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Renewal verified", res.COI, nil)
}

// UpdateBroker PATCH /api/v1/cois/:id/broker
func (h *Handlers) UpdateBroker(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.UpdateBrokerInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "invalid request body", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.UpdateBroker(c.Context(), middleware.GetActor(c), id, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Broker updated", res.COI, resultMeta(res.Warnings))
}

// Get GET /api/v1/cois/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	coi, err := h.Service.GetCOI(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	st := h.Service.ClassifyCOI(coi, time.Now())
	return response.Success(c, "COI", coi, fiber.Map{"expiration": st})
}

// Pending GET /api/v1/cois/pending
func (h *Handlers) Pending(c *fiber.Ctx) error {
	cois, err := h.Service.PendingCOIs(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Pending COIs", cois, fiber.Map{"count": len(cois)})
}

// ForProject GET /api/v1/projects/:id/cois
func (h *Handlers) ForProject(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondErr(c, err)
	}
	cois, err := h.Service.COIsForProject(c.Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Project COIs", cois, fiber.Map{"count": len(cois)})
}

// ExpirationSweep POST /api/v1/cois/expiration-sweep — the scheduled check
// entry point.
func (h *Handlers) ExpirationSweep(c *fiber.Ctx) error {
	statuses, err := h.Service.ExpirationSweep(c.Context(), time.Now())
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Sweep complete", statuses, fiber.Map{"count": len(statuses)})
}
