package main

import (
	"io"
	"log"
	"net/http"
	"raffles/src/lib"
	"raffles/src/types"

	"github.com/gin-gonic/gin"
)

// settlePayment looks the payment up at the gateway and settles its order when approved.
// Gateway notifications only distinguish a missing order (404) from everything else (500).
func settlePayment(ctx *gin.Context, app *App, paymentID string) {
	order, err := app.svc.ProcessPayment(ctx.Request.Context(), paymentID)
	if err != nil {
		log.Printf("Error processing payment %s: %s\n", paymentID, err.Error())
		status := http.StatusInternalServerError
		if types.CodeOf(err) == types.CodeNotFound {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	if order == nil {
		ctx.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"success": true, "order_id": order.ID, "status": order.Status})
}

func webhookRoutes(g *gin.Engine, app *App) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/payments", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		n, err := lib.ParsePaymentNotification(payload, ctx.Request.URL.Query())
		if err != nil {
			log.Printf("Error parsing payment notification: %s\n", err.Error())
			ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		if secret := app.cfg.MPWebhookSecret; secret != "" {
			if !lib.VerifyMercadoPagoSignature(secret, ctx.GetHeader("x-signature"), ctx.GetHeader("x-request-id"), n.DataID) {
				log.Printf("Invalid signature for notification %s\n", n.DataID)
				ctx.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
				return
			}
		}
		if !n.IsPayment() {
			ctx.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
			return
		}
		if n.DataID == "" {
			ctx.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "notification has no payment id"})
			return
		}
		settlePayment(ctx, app, n.DataID)
	})

	if app.stripe != nil {
		apiv1.POST("/webhook/stripe", func(ctx *gin.Context) {
			payload, err := io.ReadAll(ctx.Request.Body)
			if err != nil {
				log.Printf("Error reading request body: %s\n", err.Error())
				ctx.Status(http.StatusServiceUnavailable)
				return
			}
			paymentID, err := app.stripe.ParseWebhook(payload, ctx.GetHeader("Stripe-Signature"))
			if err != nil {
				log.Printf("Error verifying webhook signature: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid signature"})
				return
			}
			if paymentID == "" {
				ctx.JSON(http.StatusOK, gin.H{"success": true, "ignored": true})
				return
			}
			settlePayment(ctx, app, paymentID)
		})
	}
	return apiv1
}
