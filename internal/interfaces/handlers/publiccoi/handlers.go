package publiccoi

import (
	"coitrack-backend/internal/application/compliance"
	"coitrack-backend/internal/pkg/apperrors"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Handlers serves the unauthenticated broker endpoints. Access is granted by
// the COI token alone; the token is checked for exact match and expiry on
// every use.
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

// View GET /api/v1/public/coi/:token — the broker-facing view: status, the
// sample certificate reference and what is being asked for. Broker contact
// details and internal review fields stay out of the payload.
func (h *Handlers) View(c *fiber.Ctx) error {
	coi, err := h.Service.FindByToken(c.Context(), c.Params("token"))
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "COI", fiber.Map{
		"status":             coi.Status,
		"sample_coi_pdf_url": coi.SampleCOIPDFURL,
		"deficiency_message": coi.DeficiencyMessage,
	}, nil)
}

// Upload POST /api/v1/public/coi/:token/upload
func (h *Handlers) Upload(c *fiber.Ctx) error {
	coi, err := h.Service.FindByToken(c.Context(), c.Params("token"))
	if err != nil {
		return respondErr(c, err)
	}
	var in compliance.BrokerUploadInput
	if err := c.BodyParser(&in); err != nil {
		return response.Error(c, "document_url is required", fiber.StatusBadRequest, nil)
	}
	res, err := h.Service.BrokerUpload(c.Context(), coi.ID, in)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "Document submitted for review", fiber.Map{"status": res.COI.Status}, nil)
}

// Sign POST /api/v1/public/coi/:token/sign
func (h *Handlers) Sign(c *fiber.Ctx) error {
	coi, err := h.Service.FindByToken(c.Context(), c.Params("token"))
	if err != nil {
		return respondErr(c, err)
	}
	res, err := h.Service.BrokerSign(c.Context(), coi.ID)
	if err != nil {
		return respondErr(c, err)
	}
	return response.Success(c, "COI signed", fiber.Map{"status": res.COI.Status}, nil)
}
