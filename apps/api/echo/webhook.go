package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core/ledger"
)

type webhookApi struct {
	ledger *ledger.Service
}

// registerWebhookAPI mounts the payment gateway callbacks. They are authenticated by body signature, not JWT.
func registerWebhookAPI(v1 *echo.Group, deps ServerDeps) {
	api := &webhookApi{ledger: deps.Ledger}

	limiter := newRateLimiter(deps.Conf.Server.WebhookRatePerMinute)
	wg := v1.Group("/webhooks", limiter.middleware(), webhookSignatureMiddleware(deps.Conf.Server.WebhookSecret))
	wg.POST("/payments", api.payment)
}

func (api *webhookApi) payment(ctx echo.Context) error {
	var data ledger.Payment
	if err := ctx.Bind(&data); err != nil {
		return badRequest(err)
	}

	tx, created, err := api.ledger.RecordPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	if !created {
		return ctx.JSON(http.StatusOK, tx)
	}
	return ctx.JSON(http.StatusCreated, tx)
}
