package rest

import (
	"github.com/gofiber/fiber/v2"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	"github.com/zentria/wagate/pkg/utils"
	"github.com/zentria/wagate/usecase"
)

type Session struct {
	Service domainSession.IUsecase
	Sync    usecase.IChatSyncUsecase
}

func InitRestSession(app fiber.Router, service domainSession.IUsecase, sync usecase.IChatSyncUsecase) Session {
	rest := Session{Service: service, Sync: sync}
	app.Post("/sessions", rest.Create)
	app.Get("/sessions", rest.List)
	app.Get("/sessions/:session_id", rest.Get)
	app.Put("/sessions/:session_id/primary", rest.SetPrimary)
	app.Post("/sessions/:session_id/disconnect", rest.Disconnect)
	app.Post("/sessions/:session_id/logout", rest.Logout)
	app.Post("/sessions/:session_id/restart", rest.Restart)
	app.Post("/sessions/:session_id/sync", rest.TriggerSync)

	return rest
}

func (handler *Session) Create(c *fiber.Ctx) error {
	var request domainSession.CreateRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	sess, err := handler.Service.Create(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  201,
		Code:    "CREATED",
		Message: "Session created",
		Results: sess,
	})
}

func (handler *Session) List(c *fiber.Ctx) error {
	sessions, err := handler.Service.List(c.UserContext(), c.Query("workspace_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Sessions fetched",
		Results: sessions,
	})
}

func (handler *Session) Get(c *fiber.Ctx) error {
	sess, err := handler.Service.Get(c.UserContext(), c.Params("session_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session fetched",
		Results: sess,
	})
}

func (handler *Session) SetPrimary(c *fiber.Ctx) error {
	err := handler.Service.SetPrimary(c.UserContext(), c.Query("workspace_id"), c.Params("session_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session promoted to primary",
	})
}

func (handler *Session) Disconnect(c *fiber.Ctx) error {
	err := handler.Service.Disconnect(c.UserContext(), c.Params("session_id"), "manual disconnect")
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session disconnected",
	})
}

func (handler *Session) Logout(c *fiber.Ctx) error {
	err := handler.Service.Logout(c.UserContext(), c.Params("session_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session logged out, credentials purged",
	})
}

func (handler *Session) Restart(c *fiber.Ctx) error {
	err := handler.Service.RestartSession(c.UserContext(), c.Params("session_id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Session restart initiated",
	})
}

// TriggerSync queues a chat sync run and answers immediately; progress is
// observable through the websocket feed and the sync summary logs.
func (handler *Session) TriggerSync(c *fiber.Ctx) error {
	err := handler.Sync.TriggerSync(c.UserContext(), c.Params("session_id"))
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusAccepted).JSON(utils.ResponseData{
		Status:  202,
		Code:    "ACCEPTED",
		Message: "Chat sync queued",
	})
}
