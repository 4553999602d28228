package middleware

import (
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/constants"
	"coitrack-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const actorLocal = "actor"

// ActorContext reads the caller identity headers set by the auth collaborator
// and stores an explicit actor.Context in Locals. The engine never reads
// identity from ambient session state; handlers pass this value into every
// core operation.
func ActorContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		act := actor.Context{
			ID:    c.Get("X-Actor-Id"),
			Role:  c.Get("X-Actor-Role"),
			Email: c.Get("X-Actor-Email"),
		}
		c.Locals(actorLocal, act)
		return c.Next()
	}
}

// RequireActor rejects mutating requests without a usable actor identity.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		act := GetActor(c)
		if act.ID == "" {
			return response.Error(c, "X-Actor-Id header is required", fiber.StatusUnauthorized, nil)
		}
		if act.Role != "" && !constants.IsValidRole(act.Role) {
			return response.Error(c, "X-Actor-Role is invalid", fiber.StatusBadRequest, nil)
		}
		return c.Next()
	}
}

// GetActor returns the actor context for the request.
func GetActor(c *fiber.Ctx) actor.Context {
	if a, ok := c.Locals(actorLocal).(actor.Context); ok {
		return a
	}
	return actor.Context{}
}
