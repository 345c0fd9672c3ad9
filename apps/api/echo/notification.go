package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core/notification"
)

type notificationApi struct {
	dispatcher *notification.Dispatcher
}

func registerNotificationAPI(v1 *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := &notificationApi{dispatcher: deps.Dispatcher}

	ng := v1.Group("/notifications", authed...)
	ng.GET("", api.query)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/mark-all-read", api.markAllRead)
	ng.GET("/:id", api.retrieve)
	ng.POST("/:id/mark-read", api.markRead)
}

type (
	unreadCountResponse struct {
		Count int `json:"count"`
	}

	markAllReadResponse struct {
		Updated int64 `json:"updated"`
	}
)

// Handlers

func (api *notificationApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	filter, err := bindNotificationFilter(ctx)
	if err != nil {
		return err
	}

	ns, err := api.dispatcher.ListFor(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "querying notifications")
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	count, err := api.dispatcher.UnreadCount(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "counting unread notifications")
	}
	return ctx.JSON(http.StatusOK, unreadCountResponse{Count: count})
}

func (api *notificationApi) retrieve(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.dispatcher.Get(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting notification")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	n, err := api.dispatcher.MarkRead(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	updated, err := api.dispatcher.MarkAllRead(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "marking all notifications read")
	}
	return ctx.JSON(http.StatusOK, markAllReadResponse{Updated: updated})
}
