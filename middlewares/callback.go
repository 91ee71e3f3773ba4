package middlewares

import (
	"context"
	"errors"
	"fmt"

	"i8gateway/apperr"
	"i8gateway/helpers"
	"i8gateway/identity"
	"i8gateway/models"
	"i8gateway/reconcile"
	"i8gateway/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

const (
	localIdentity = "identity"
	localCallback = "callback"
	localSession  = "session"
)

// AgentSource resolves an agent id to its config row.
type AgentSource interface {
	Agent(ctx context.Context, agentID int) (*models.Agent, error)
}

// CallbackAuth parses the provider body and resolves the player named in
// it. Any failure answers INVALID_TOKEN without reaching the handler.
func CallbackAuth(agents AgentSource, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req reconcile.Request
		if err := c.BodyParser(&req); err != nil {
			return refuse(c, log, apperr.Validation("callback.body", err))
		}

		who, err := identity.Parse(req.Username)
		if err != nil {
			return refuse(c, log, apperr.Validation("callback.identity", fmt.Errorf("%w: %q", err, req.Username)))
		}

		if _, err := agents.Agent(c.UserContext(), who.AgentID); err != nil {
			if errors.Is(err, services.ErrAgentNotFound) {
				err = apperr.Validation("callback.agent", err)
			}
			return refuse(c, log, err)
		}

		c.Locals(localIdentity, who)
		c.Locals(localCallback, &req)
		return c.Next()
	}
}

// refuse answers INVALID_TOKEN. Bad input is logged as a warning, a
// failed lookup as an error unless it was already reported.
func refuse(c *fiber.Ctx, log zerolog.Logger, err error) error {
	switch {
	case apperr.KindOf(err) == apperr.KindValidation:
		log.Warn().Err(err).Str("path", c.Path()).Msg("callback refused")
	case !apperr.IsReported(err):
		log.Error().Err(err).Str("path", c.Path()).Msg("callback identity lookup failed")
	}
	s := reconcile.StatusInvalidToken
	return helpers.CallbackError(c, s.Code, s.Message)
}

// CallbackIdentity returns the player resolved by CallbackAuth.
func CallbackIdentity(c *fiber.Ctx) identity.Identity {
	who, _ := c.Locals(localIdentity).(identity.Identity)
	return who
}

// CallbackRequest returns the body parsed by CallbackAuth.
func CallbackRequest(c *fiber.Ctx) *reconcile.Request {
	req, _ := c.Locals(localCallback).(*reconcile.Request)
	if req == nil {
		return &reconcile.Request{}
	}
	return req
}
