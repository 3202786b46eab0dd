package rest

import (
	"github.com/gofiber/fiber/v2"
	"github.com/zentria/wagate/gateway/monitor"
	"github.com/zentria/wagate/infrastructure/valkey"
	"github.com/zentria/wagate/pkg/msgworker"
	"github.com/zentria/wagate/pkg/utils"
)

type Monitoring struct {
	Pool   *msgworker.IngestWorkerPool
	Audit  *monitor.RestartAudit
	Valkey *valkey.Client
}

func InitRestMonitoring(app fiber.Router, pool *msgworker.IngestWorkerPool, audit *monitor.RestartAudit, vk *valkey.Client) Monitoring {
	rest := Monitoring{Pool: pool, Audit: audit, Valkey: vk}
	app.Get("/monitoring/health", rest.Health)
	app.Get("/monitoring/workerpool", rest.WorkerPool)
	app.Get("/monitoring/sessions/:session_id/restarts", rest.RestartHistory)

	return rest
}

func (handler *Monitoring) Health(c *fiber.Ctx) error {
	valkeyOK := handler.Valkey != nil && handler.Valkey.IsConnected()

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Gateway healthy",
		Results: map[string]any{
			"valkey_connected": valkeyOK,
		},
	})
}

func (handler *Monitoring) WorkerPool(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Worker pool stats",
		Results: handler.Pool.GetStats(),
	})
}

func (handler *Monitoring) RestartHistory(c *fiber.Ctx) error {
	history, err := handler.Audit.History(c.UserContext(), c.Params("session_id"), c.QueryInt("limit", 50))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Restart history fetched",
		Results: history,
	})
}
