package health

import (
	"context"

	healthsvc "coitrack-backend/internal/health"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb *redis.Client
	DB  healthsvc.DBPinger
}

// JSON GET /health/json
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := healthsvc.CollectHealth(context.Background(), h.Rdb, h.DB)
	return response.Success(c, "Health", fiber.Map{
		"service":      "coitrack-api",
		"status":       result.Status,
		"runtime":      result.Runtime,
		"dependencies": result.Dependencies,
	}, nil)
}
