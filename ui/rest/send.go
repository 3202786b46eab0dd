package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/zentria/wagate/gateway/domain/message"
	"github.com/zentria/wagate/pkg/utils"
)

type Send struct {
	Service message.ISendUsecase
}

func InitRestSend(app fiber.Router, service message.ISendUsecase) Send {
	rest := Send{Service: service}
	app.Post("/send/message", rest.SendText)
	app.Post("/send/media", rest.SendMedia)
	app.Post("/send/template", rest.SendTemplate)
	app.Post("/messages/read", rest.MarkAsRead)
	app.Get("/messages/:message_id/status", rest.MessageStatus)

	return rest
}

func (handler *Send) SendText(c *fiber.Ctx) error {
	var request message.SendTextRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.SendText(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message dispatched",
		Results: response,
	})
}

func (handler *Send) SendMedia(c *fiber.Ctx) error {
	var request message.SendMediaRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.SendMedia(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Media dispatched",
		Results: response,
	})
}

func (handler *Send) SendTemplate(c *fiber.Ctx) error {
	var request message.SendTemplateRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.SendTemplate(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Template dispatched",
		Results: response,
	})
}

func (handler *Send) MarkAsRead(c *fiber.Ctx) error {
	var request message.MarkReadRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.MarkAsRead(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message marked as read",
	})
}

func (handler *Send) MessageStatus(c *fiber.Ctx) error {
	status, err := handler.Service.MessageStatus(
		c.UserContext(),
		c.Query("workspace_id"),
		c.Query("session_id"),
		c.Params("message_id"),
	)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message status fetched",
		Results: map[string]any{"status": status},
	})
}
