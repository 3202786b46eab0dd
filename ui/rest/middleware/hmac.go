package middleware

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/zentria/wagate/pkg/hmacsig"
	"github.com/zentria/wagate/pkg/utils"
)

// HMACAuth verifies the signature and timestamp headers of worker webhook
// requests against the raw body, before any JSON decoding happens.
// Verification failures are indistinguishable to the caller on purpose:
// always 401, never a hint about which check failed.
func HMACAuth(secret string, tolerance time.Duration) fiber.Handler {
	if tolerance <= 0 {
		tolerance = hmacsig.DefaultTolerance
	}
	return func(ctx *fiber.Ctx) error {
		signature := ctx.Get("X-HMAC-Signature")
		timestamp := ctx.Get("X-Timestamp")

		err := hmacsig.Verify(signature, timestamp, ctx.Body(), secret, tolerance)
		if err == nil {
			return ctx.Next()
		}

		fields := logrus.Fields{
			"ip":   ctx.IP(),
			"path": ctx.Path(),
		}
		switch {
		case errors.Is(err, hmacsig.ErrTimestampSkew):
			fields["reason"] = "timestamp outside tolerance"
		case errors.Is(err, hmacsig.ErrBadTimestamp):
			fields["reason"] = "unparseable timestamp"
		default:
			fields["reason"] = "signature mismatch"
		}
		logrus.WithFields(fields).Warn("[HMAC] Webhook request rejected")

		return ctx.Status(fiber.StatusUnauthorized).JSON(utils.ResponseData{
			Status:  fiber.StatusUnauthorized,
			Code:    "UNAUTHORIZED",
			Message: "invalid webhook signature",
		})
	}
}
