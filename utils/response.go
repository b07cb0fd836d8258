package utils

import "github.com/gin-gonic/gin"

// JSONResponse is the envelope every endpoint answers with. Code is 0 on
// success; error codes are five digits with the HTTP status as prefix
// (40401 landing not found, 50301 stats unavailable), so API clients can
// branch on Code alone without inspecting the transport status.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes the envelope with the given HTTP status.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success answers 200 with code 0 and the payload. Tracking endpoints use
// it even when they skipped or dropped the event; the outcome rides in
// the payload, never in the status.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, 200, 0, "success", data)
}

// Error answers with an application error code and no payload.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}
