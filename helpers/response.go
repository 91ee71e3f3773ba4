package helpers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/shopspring/decimal"
)

// Echo holds the callback fields copied back into every response.
type Echo struct {
	ID              string
	ProductID       string
	Username        string
	Currency        string
	TimestampMillis json.RawMessage
}

// Amount renders a balance as a JSON number with at most two decimals.
func Amount(d decimal.Decimal) json.Number {
	return json.Number(d.Round(2).String())
}

func timestamp(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func CallbackSuccess(c *fiber.Ctx, e Echo, before, after decimal.Decimal) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":              e.ID,
		"statusCode":      0,
		"productId":       e.ProductID,
		"timestampMillis": timestamp(e.TimestampMillis),
		"username":        e.Username,
		"currency":        e.Currency,
		"balanceBefore":   Amount(before),
		"balanceAfter":    Amount(after),
	})
}

// CallbackStatus is the short body used for duplicates and rejections.
func CallbackStatus(c *fiber.Ctx, e Echo, code int, balance decimal.Decimal) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":              e.ID,
		"statusCode":      code,
		"productId":       e.ProductID,
		"balance":         Amount(balance),
		"timestampMillis": timestamp(e.TimestampMillis),
	})
}

func CallbackBalance(c *fiber.Ctx, e Echo, balance decimal.Decimal) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":              e.ID,
		"username":        e.Username,
		"currency":        e.Currency,
		"timestampMillis": timestamp(e.TimestampMillis),
		"balance":         Amount(balance),
		"productId":       e.ProductID,
		"statusCode":      0,
	})
}

// CallbackError is the body for failures that never reached a decision.
// Callbacks always answer 200 so the provider reads the code.
func CallbackError(c *fiber.Ctx, code int, message string) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"Error":       code,
		"Description": message,
	})
}

func JSONSuccess(c *fiber.Ctx, data fiber.Map) error {
	body := fiber.Map{"statusCode": fiber.StatusOK}
	for k, v := range data {
		body[k] = v
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

func JSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"statusCode": status,
		"error":      utils.StatusMessage(status),
		"message":    message,
	})
}
