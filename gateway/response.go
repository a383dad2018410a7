package gateway

import (
	"errors"
	"net/http"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/voucher"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Status:  statusSuccess,
		Message: message,
		Data:    data,
	})
}

func fail(c *gin.Context, statusCode int, code, message string) {
	c.AbortWithStatusJSON(statusCode, Response{
		Status:  statusFail,
		Message: message,
		Code:    code,
	})
}

// respondError maps err through the error taxonomy. Internal errors are
// logged and never echoed to the client.
func (g *Gateway) respondError(c *gin.Context, err error) {
	statusCode := apperr.HTTPStatus(err)
	if apperr.KindOf(err) == apperr.KindInternal {
		g.logger.Error("Request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		fail(c, statusCode, "internal", "internal server error")
		return
	}

	resp := Response{Status: statusFail, Message: err.Error(), Code: apperr.CodeOf(err)}
	var minErr *voucher.MinimumOrderNotMetError
	if errors.As(err, &minErr) {
		resp.Data = gin.H{"minimum": minErr.Minimum, "subtotal": minErr.Subtotal, "shortfall": minErr.Shortfall}
	}
	c.AbortWithStatusJSON(statusCode, resp)
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, apperr.ErrInvalidInput.Code, message)
}
