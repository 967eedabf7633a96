package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags returns the rollout flags as evaluated for the caller.
// @Summary Feature flags evaluated for the caller
// @Tags ops
// @Produce json
// @Success 200 {object} Response{data=map[string]bool}
// @Security BearerAuth
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	evaluated := map[string]bool{}
	if s.featureFlags != nil {
		evaluated = s.featureFlags.Snapshot(callerID(c))
	}
	return respondOK(c, fiber.StatusOK, evaluated, "")
}
