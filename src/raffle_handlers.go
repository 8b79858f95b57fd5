package main

import (
	"net/http"
	"raffles/src/middlewares"
	"raffles/src/types"

	"github.com/gin-gonic/gin"
)

// bindID reads the :id path parameter, answering 400 when it is missing.
func bindID(ctx *gin.Context) (string, bool) {
	var params types.SimpleRequestParams
	if err := ctx.ShouldBindUri(&params); err != nil {
		middlewares.Fail(ctx, types.Errorf(types.ErrInvalidArgument, "%s", err.Error()))
		return "", false
	}
	return params.ID, true
}

func bindJSON(ctx *gin.Context, body any) bool {
	if err := ctx.ShouldBindJSON(body); err != nil {
		middlewares.Fail(ctx, types.Errorf(types.ErrInvalidArgument, "%s", err.Error()))
		return false
	}
	return true
}

func publicRaffleRoutes(g *gin.Engine, app *App) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.
		GET("/raffles", func(ctx *gin.Context) {
			var filters types.RafflesQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				middlewares.Fail(ctx, types.Errorf(types.ErrInvalidArgument, "%s", err.Error()))
				return
			}
			raffles, err := app.svc.ListRaffles(ctx.Request.Context(), filters.Status)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, raffles)
		}).
		GET("/raffles/:id", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			raffle, err := app.svc.GetRaffle(ctx.Request.Context(), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, raffle)
		}).
		GET("/raffles/:id/tickets", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			var filters types.TicketsQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				middlewares.Fail(ctx, types.Errorf(types.ErrInvalidArgument, "%s", err.Error()))
				return
			}
			tickets, err := app.svc.ListTickets(ctx.Request.Context(), id, filters.Status)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, tickets)
		})
	return apiv1
}

func adminRaffleRoutes(admin *gin.RouterGroup, app *App) *gin.RouterGroup {
	admin.
		POST("/raffles", func(ctx *gin.Context) {
			var body types.CreateRaffleRequestBody
			if !bindJSON(ctx, &body) {
				return
			}
			raffle, err := app.svc.CreateRaffle(ctx.Request.Context(), middlewares.GetCaller(ctx), body)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusCreated, raffle)
		}).
		POST("/raffles/:id/tickets", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			var body types.CreateTicketsRequestBody
			if !bindJSON(ctx, &body) {
				return
			}
			if err := app.svc.CreateTickets(ctx.Request.Context(), id, body.Count); err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusCreated, gin.H{"raffle_id": id, "count": body.Count})
		}).
		PUT("/raffles/:id/status", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			var body types.UpdateRaffleStatusRequestBody
			if !bindJSON(ctx, &body) {
				return
			}
			raffle, err := app.svc.SetRaffleStatus(ctx.Request.Context(), id, body.Status)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, raffle)
		}).
		DELETE("/raffles/:id", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			if err := app.svc.DeleteRaffle(ctx.Request.Context(), id); err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, gin.H{"id": id})
		}).
		POST("/raffles/:id/draw", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			var body types.DrawRequestBody
			if ctx.Request.ContentLength != 0 && !bindJSON(ctx, &body) {
				return
			}
			result, err := app.svc.Draw(ctx.Request.Context(), id, body.Number)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, result)
		}).
		GET("/raffles/:id/stats", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			stats, err := app.svc.Stats(ctx.Request.Context(), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, stats)
		})
	return admin
}
