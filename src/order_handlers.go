package main

import (
	"net/http"
	"raffles/src/lib"
	"raffles/src/middlewares"
	"raffles/src/types"

	"github.com/gin-gonic/gin"
)

func orderRoutes(authorized *gin.RouterGroup, app *App) *gin.RouterGroup {
	authorized.
		POST("/raffles/:id/reserve", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			var body types.ReserveRequestBody
			if !bindJSON(ctx, &body) {
				return
			}
			order, err := app.svc.Reserve(ctx.Request.Context(), middlewares.GetCaller(ctx), id, body.Quantity)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusCreated, order)
		}).
		GET("/orders", func(ctx *gin.Context) {
			orders, err := app.svc.ListOrders(ctx.Request.Context(), middlewares.GetCaller(ctx), ctx.Query("raffle_id"))
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, orders)
		}).
		GET("/orders/:id", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			order, err := app.svc.GetOrder(ctx.Request.Context(), middlewares.GetCaller(ctx), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, order)
		}).
		POST("/orders/:id/payment", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			order, err := app.svc.CreatePixPayment(ctx.Request.Context(), middlewares.GetCaller(ctx), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, order)
		}).
		POST("/orders/:id/cancel", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			order, err := app.svc.Cancel(ctx.Request.Context(), middlewares.GetCaller(ctx), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			middlewares.OK(ctx, http.StatusOK, order)
		}).
		GET("/orders/:id/qrcode", func(ctx *gin.Context) {
			id, ok := bindID(ctx)
			if !ok {
				return
			}
			order, err := app.svc.GetOrder(ctx.Request.Context(), middlewares.GetCaller(ctx), id)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			if order.PaymentQRCode == nil || *order.PaymentQRCode == "" {
				middlewares.Fail(ctx, types.Errorf(types.ErrOrderNotReserved, "order %s has no PIX payment", id))
				return
			}
			img, err := lib.EncodeQRCode(*order.PaymentQRCode)
			if err != nil {
				middlewares.Fail(ctx, err)
				return
			}
			ctx.Data(http.StatusOK, "image/jpeg", img)
		})
	return authorized
}

func adminOrderRoutes(admin *gin.RouterGroup, app *App) *gin.RouterGroup {
	admin.POST("/orders/:id/settle", func(ctx *gin.Context) {
		id, ok := bindID(ctx)
		if !ok {
			return
		}
		order, err := app.svc.Settle(ctx.Request.Context(), id)
		if err != nil {
			middlewares.Fail(ctx, err)
			return
		}
		middlewares.OK(ctx, http.StatusOK, order)
	})
	return admin
}
