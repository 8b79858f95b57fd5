package middlewares

import (
	"log"
	"raffles/src/types"

	"github.com/gin-gonic/gin"
)

// OK writes the success envelope.
func OK(ctx *gin.Context, status int, data any) {
	ctx.JSON(status, gin.H{"success": true, "data": data})
}

// Fail writes the error envelope with the status mapped from the error code.
// Uncoded errors are logged and reported as internal.
func Fail(ctx *gin.Context, err error) {
	code := types.CodeOf(err)
	msg := err.Error()
	if code == types.CodeInternal {
		log.Printf("Error handling %s %s: %s\n", ctx.Request.Method, ctx.Request.URL.Path, err.Error())
		msg = types.ErrInternal.Message
	}
	ctx.JSON(types.HTTPStatus(code), gin.H{"success": false, "error": msg, "code": code})
}
