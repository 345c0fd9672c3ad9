package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/ledger"
	"github.com/trezcool/masomo-audit/core/notification"
)

var (
	orderingParam = "ordering"
	malformedBody = "malformed request body"
)

// badRequest turns a binding failure into a validation error.
func badRequest(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "body", Error: malformedBody})
}

func invalidParam(name, msg string) error {
	return core.NewValidationError(nil, core.FieldError{Field: name, Error: msg})
}

// unitPath binds the `:domain/:unitId` path params.
// Malformed unit ids cannot name a unit.
func unitPath(ctx echo.Context) (ledger.Domain, int64, error) {
	domain, err := ledger.ParseDomain(ctx.Param("domain"))
	if err != nil {
		return "", 0, err
	}
	unitID, err := strconv.ParseInt(ctx.Param("unitId"), 10, 64)
	if err != nil || unitID <= 0 {
		return "", 0, core.NewNotFoundError(string(domain.UnitKind()), ctx.Param("unitId"))
	}
	return domain, unitID, nil
}

func parseBool(ctx echo.Context, names ...string) (*bool, error) {
	for _, name := range names {
		val := ctx.QueryParam(name)
		if val == "" {
			continue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, invalidParam(name, "must be true or false")
		}
		return &b, nil
	}
	return nil, nil
}

func parseTime(ctx echo.Context, name string) (time.Time, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, invalidParam(name, "must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}

// bindTransactionFilter reads the listing query params:
// search, type (repeatable or comma separated), verified, recorded_from, recorded_to & ordering.
func bindTransactionFilter(ctx echo.Context, domain ledger.Domain, unitID int64) (ledger.QueryFilter, error) {
	filter := ledger.QueryFilter{
		Domain:   domain,
		UnitID:   unitID,
		Search:   ctx.QueryParam("search"),
		Ordering: core.ParseOrdering(ctx.QueryParam(orderingParam), ledger.OrderingFields...),
	}

	for _, val := range ctx.QueryParams()["type"] {
		for _, typ := range strings.Split(val, ",") {
			if typ = core.CleanString(typ, true /* lower */); typ != "" {
				filter.Types = append(filter.Types, typ)
			}
		}
	}

	var err error
	if filter.Verified, err = parseBool(ctx, "verified"); err != nil {
		return filter, err
	}
	if filter.RecordedFrom, err = parseTime(ctx, "recorded_from"); err != nil {
		return filter, err
	}
	if filter.RecordedTo, err = parseTime(ctx, "recorded_to"); err != nil {
		return filter, err
	}
	return filter, nil
}

func bindNotificationFilter(ctx echo.Context) (notification.QueryFilter, error) {
	var filter notification.QueryFilter
	unread, err := parseBool(ctx, "unreadOnly", "unread_only")
	if err != nil {
		return filter, err
	}
	if unread != nil {
		filter.UnreadOnly = *unread
	}
	if val := ctx.QueryParam("limit"); val != "" {
		if filter.Limit, err = strconv.Atoi(val); err != nil || filter.Limit <= 0 {
			return filter, invalidParam("limit", "must be a positive integer")
		}
	}
	return filter, nil
}

func bindMonths(ctx echo.Context) (int, error) {
	val := ctx.QueryParam("months")
	if val == "" {
		return 12, nil
	}
	months, err := strconv.Atoi(val)
	if err != nil {
		return 0, invalidParam("months", "must be an integer")
	}
	return months, nil
}
