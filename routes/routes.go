package routes

import (
	"i8gateway/controllers/api"
	"i8gateway/controllers/callback"
	"i8gateway/metrics"
	"i8gateway/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type Deps struct {
	Callback  *callback.Handler
	API       *api.Handler
	Agents    middlewares.AgentSource
	SecretKey string
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
}

func Setup(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Good health")
	})
	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}

	apiroutes := app.Group("/api", middlewares.SessionAuth(d.Agents, d.SecretKey, d.Log))
	apiroutes.Get("/list-games", d.API.ListGames)
	apiroutes.Get("/launchgame", d.API.LaunchGame)

	cb := app.Group("/callback", middlewares.CallbackAuth(d.Agents, d.Log))
	cb.Post("/checkBalance", d.Callback.CheckBalance)
	cb.Post("/placeBets", d.Callback.PlaceBets)
	cb.Post("/settleBets", d.Callback.SettleBets)
	cb.Post("/unsettleBets", d.Callback.UnsettleBets)
	cb.Post("/cancelBets", d.Callback.CancelBets)
	cb.Post("/winRewards", d.Callback.WinRewards)
	cb.Post("/voidBets", d.Callback.VoidBets)
}
