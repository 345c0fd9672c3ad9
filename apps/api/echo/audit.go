package echoapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/stats"
)

const idempotencyKeyHeader = "Idempotency-Key"

var csvHeader = []string{
	"id", "recorded_at", "type", "amount", "currency", "description", "counterparty_name",
	"reference_number", "verified", "verified_by", "verified_at", "reversal_of", "recorded_by",
}

type auditApi struct {
	ledger *ledger.Service
	stats  *stats.Aggregator
}

func registerAuditAPI(v1 *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := &auditApi{ledger: deps.Ledger, stats: deps.Stats}

	ag := v1.Group("/audit", authed...)

	// unit scoped endpoints
	ug := ag.Group("/:domain/:unitId")
	ug.GET("/transactions", api.query)
	ug.POST("/transactions", api.record)
	ug.GET("/transactions/export", api.export)
	ug.GET("/summary", api.summary)
	ug.GET("/summary/monthly", api.monthly)

	// detail endpoints
	dg := ag.Group("/transactions/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("/verify", api.verify)
	dg.POST("/reverse", api.reverse)
	dg.DELETE("", api.destroy)
}

// Handlers

func (api *auditApi) record(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	domain, unitID, err := unitPath(ctx)
	if err != nil {
		return err
	}

	var data ledger.NewTransaction
	if err = ctx.Bind(&data); err != nil {
		return badRequest(err)
	}
	data.Domain = domain
	data.UnitID = unitID
	data.IdempotencyKey = ctx.Request().Header.Get(idempotencyKeyHeader)

	tx, created, err := api.ledger.Record(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "recording transaction")
	}
	if !created {
		return ctx.JSON(http.StatusOK, tx)
	}
	return ctx.JSON(http.StatusCreated, tx)
}

func (api *auditApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	domain, unitID, err := unitPath(ctx)
	if err != nil {
		return err
	}
	filter, err := bindTransactionFilter(ctx, domain, unitID)
	if err != nil {
		return err
	}

	txs, err := api.ledger.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}
	return ctx.JSON(http.StatusOK, txs)
}

// export streams the filtered listing as a CSV attachment.
func (api *auditApi) export(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	domain, unitID, err := unitPath(ctx)
	if err != nil {
		return err
	}
	filter, err := bindTransactionFilter(ctx, domain, unitID)
	if err != nil {
		return err
	}

	txs, err := api.ledger.List(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying transactions")
	}

	fname := fmt.Sprintf("transactions_%s_%d_%s.csv", domain, unitID, time.Now().UTC().Format("20060102T150405Z"))
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fname))
	resp.WriteHeader(http.StatusOK)

	w := csv.NewWriter(resp)
	if err = w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, tx := range txs {
		verifiedAt := ""
		if tx.VerifiedAt.Valid {
			verifiedAt = tx.VerifiedAt.Time.Format(time.RFC3339)
		}
		row := []string{
			tx.ID,
			tx.RecordedAt.Format(time.RFC3339),
			tx.Type,
			tx.Amount.StringFixed(2),
			tx.Currency,
			tx.Description,
			tx.CounterpartyName.String,
			tx.ReferenceNumber.String,
			strconv.FormatBool(tx.Verified),
			tx.VerifiedBy.String,
			verifiedAt,
			tx.ReversalOf.String,
			tx.RecordedBy,
		}
		if err = w.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flushing csv")
}

func (api *auditApi) summary(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	domain, unitID, err := unitPath(ctx)
	if err != nil {
		return err
	}

	sum, err := api.stats.Summarize(ctx.Request().Context(), p, domain, unitID)
	if err != nil {
		return errors.Wrap(err, "summarizing transactions")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *auditApi) monthly(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	domain, unitID, err := unitPath(ctx)
	if err != nil {
		return err
	}
	months, err := bindMonths(ctx)
	if err != nil {
		return err
	}

	res, err := api.stats.Monthly(ctx.Request().Context(), p, domain, unitID, months)
	if err != nil {
		return errors.Wrap(err, "summarizing months")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *auditApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	tx, err := api.ledger.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting transaction")
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *auditApi) verify(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	tx, err := api.ledger.Verify(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "verifying transaction")
	}
	return ctx.JSON(http.StatusOK, tx)
}

func (api *auditApi) reverse(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	var data ledger.Reversal
	if err = ctx.Bind(&data); err != nil {
		return badRequest(err)
	}

	tx, err := api.ledger.Reverse(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reversing transaction")
	}
	return ctx.JSON(http.StatusCreated, tx)
}

func (api *auditApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	if err = api.ledger.Delete(ctx.Request().Context(), p, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting transaction")
	}
	return ctx.NoContent(http.StatusNoContent)
}
