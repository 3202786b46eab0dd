package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/zentria/wagate/gateway/domain/webhook"
	"github.com/zentria/wagate/pkg/utils"
)

type Webhook struct {
	Service webhook.IWebhookUsecase
}

// InitRestWebhook mounts the worker event endpoint. The HMAC middleware must
// already be mounted on this router; handlers here trust the body.
func InitRestWebhook(app fiber.Router, service webhook.IWebhookUsecase) Webhook {
	rest := Webhook{Service: service}
	app.Post("/webhooks/events", rest.HandleEvent)

	return rest
}

func (handler *Webhook) HandleEvent(c *fiber.Ctx) error {
	var event webhook.Event
	err := c.BodyParser(&event)
	utils.PanicIfNeeded(err)

	err = handler.Service.HandleEvent(c.UserContext(), event)
	utils.PanicIfNeeded(err)

	// Sync batches are applied asynchronously; the worker only learns that
	// its batch is queued.
	if event.Type == webhook.EventChatBatch {
		return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
			Status:  202,
			Code:    "QUEUED",
			Message: "Sync batch queued",
		})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Event processed",
	})
}
