package callback

import (
	"context"

	"i8gateway/helpers"
	"i8gateway/identity"
	"i8gateway/middlewares"
	"i8gateway/reconcile"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type Engine interface {
	Handle(ctx context.Context, ev reconcile.Event, who identity.Identity, req *reconcile.Request) reconcile.Result
	Balance(ctx context.Context, who identity.Identity) (decimal.Decimal, error)
}

// Handler serves the provider's seamless wallet callbacks. Every answer is
// HTTP 200; the outcome is carried in statusCode or Error.
type Handler struct {
	engine Engine
}

func NewHandler(e Engine) *Handler {
	return &Handler{engine: e}
}

func echo(req *reconcile.Request) helpers.Echo {
	return helpers.Echo{
		ID:              req.ID.String(),
		ProductID:       req.ProductID.String(),
		Username:        req.Username,
		Currency:        req.Currency,
		TimestampMillis: req.TimestampMillis,
	}
}

func (h *Handler) CheckBalance(c *fiber.Ctx) error {
	req := middlewares.CallbackRequest(c)

	balance, err := h.engine.Balance(c.UserContext(), middlewares.CallbackIdentity(c))
	if err != nil {
		s := reconcile.StatusInternal
		return helpers.CallbackError(c, s.Code, s.Message)
	}
	return helpers.CallbackBalance(c, echo(req), balance)
}

func (h *Handler) PlaceBets(c *fiber.Ctx) error    { return h.handle(c, reconcile.EventPlaceBets) }
func (h *Handler) SettleBets(c *fiber.Ctx) error   { return h.handle(c, reconcile.EventSettleBets) }
func (h *Handler) UnsettleBets(c *fiber.Ctx) error { return h.handle(c, reconcile.EventUnsettleBets) }
func (h *Handler) CancelBets(c *fiber.Ctx) error   { return h.handle(c, reconcile.EventCancelBets) }
func (h *Handler) WinRewards(c *fiber.Ctx) error   { return h.handle(c, reconcile.EventWinRewards) }
func (h *Handler) VoidBets(c *fiber.Ctx) error     { return h.handle(c, reconcile.EventVoidBets) }

func (h *Handler) handle(c *fiber.Ctx, ev reconcile.Event) error {
	req := middlewares.CallbackRequest(c)
	res := h.engine.Handle(c.UserContext(), ev, middlewares.CallbackIdentity(c), req)

	switch res.Status {
	case reconcile.StatusSuccess:
		return helpers.CallbackSuccess(c, echo(req), res.BalanceBefore, res.BalanceAfter)
	case reconcile.StatusInternal, reconcile.StatusForbidden:
		return helpers.CallbackError(c, res.Status.Code, res.Status.Message)
	default:
		return helpers.CallbackStatus(c, echo(req), res.Status.Code, res.BalanceBefore)
	}
}
