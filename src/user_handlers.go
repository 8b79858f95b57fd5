package main

import (
	"net/http"
	"raffles/src/middlewares"

	"github.com/gin-gonic/gin"
)

func userRoutes(authorized *gin.RouterGroup, app *App) *gin.RouterGroup {
	authorized.
		POST("/users/me", func(ctx *gin.Context) {
			user, err := app.svc.SyncUser(ctx.Request.Context(), middlewares.GetCaller(ctx))
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, user)
		}).
		GET("/users/me", func(ctx *gin.Context) {
			user, err := app.svc.GetUser(ctx.Request.Context(), middlewares.GetCaller(ctx))
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, user)
		})
	return authorized
}
