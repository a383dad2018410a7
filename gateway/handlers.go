package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/bookshop/pkg/models"
	"github.com/example/bookshop/pkg/order"
	"github.com/gin-gonic/gin"
)

const historyLimit = 50

type placeOrderRequest struct {
	Items          []order.CartItem `json:"items" binding:"required"`
	Address        string           `json:"address"`
	Phone          string           `json:"phone"`
	PaymentMethod  string           `json:"payment_method"`
	VoucherCode    string           `json:"voucher_code"`
	Note           string           `json:"note"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type placeOrderResponse struct {
	OrderID    uint64        `json:"order_id"`
	Total      int64         `json:"total"`
	Status     string        `json:"status"`
	GuestToken string        `json:"guest_token,omitempty"`
	Order      *models.Order `json:"order"`
}

func (g *Gateway) placeOrder(c *gin.Context) {
	var body placeOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	key := c.GetHeader(idempotencyKey)
	if key == "" {
		key = body.IdempotencyKey
	}
	p, err := g.orders.PlaceOrder(c.Request.Context(), order.PlaceOrderRequest{
		Items:          body.Items,
		Address:        body.Address,
		Phone:          body.Phone,
		PaymentMethod:  models.PaymentMethod(strings.ToUpper(strings.TrimSpace(body.PaymentMethod))),
		VoucherCode:    body.VoucherCode,
		Note:           body.Note,
		IdempotencyKey: key,
		UserID:         currentUser(c),
	})
	if err != nil {
		g.respondError(c, err)
		return
	}

	resp := placeOrderResponse{
		OrderID:    p.Order.ID,
		Total:      p.Order.Total,
		Status:     string(p.Order.Status),
		GuestToken: p.GuestToken,
		Order:      p.Order,
	}
	if p.Replayed {
		success(c, http.StatusOK, "Order already placed", resp)
		return
	}
	success(c, http.StatusCreated, "Order placed successfully", resp)
}

func (g *Gateway) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := g.orders.GetOrder(c.Request.Context(), id, *currentUser(c))
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Order retrieved", o)
}

func (g *Gateway) listOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	res, err := g.orders.ListOrders(c.Request.Context(), *currentUser(c), page, pageSize)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Orders retrieved", res)
}

func (g *Gateway) getOrderHistory(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	if _, err := g.orders.GetOrder(c.Request.Context(), id, *currentUser(c)); err != nil {
		g.respondError(c, err)
		return
	}
	logs, err := g.audit.GetAuditLogs(c.Request.Context(), id, historyLimit)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Order history retrieved", logs)
}

func (g *Gateway) advanceStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	status := models.OrderStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	o, err := g.orders.Advance(c.Request.Context(), id, status)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Order status updated", o)
}

func (g *Gateway) cancelOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	o, err := g.orders.Cancel(c.Request.Context(), id)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Order cancelled", o)
}

func (g *Gateway) confirmPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var body struct {
		Success *bool `json:"success" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	o, err := g.orders.ConfirmPayment(c.Request.Context(), id, *body.Success)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Payment result applied", o)
}

func (g *Gateway) getOrderByToken(c *gin.Context) {
	o, err := g.orders.GetOrderByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Order retrieved", o)
}

func (g *Gateway) quoteVoucher(c *gin.Context) {
	var body struct {
		Code     string `json:"code" binding:"required"`
		Subtotal int64  `json:"subtotal"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	res, err := g.orders.QuoteVoucher(c.Request.Context(), body.Code, body.Subtotal, currentUser(c))
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Voucher applicable", gin.H{
		"code":     res.Code,
		"discount": res.Discount,
		"total":    body.Subtotal - res.Discount,
	})
}

func (g *Gateway) getRevenueSummary(c *gin.Context) {
	loc := g.reports.Location()
	anchor := time.Now().In(loc)
	if raw := c.Query("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			badRequest(c, "date must be formatted as YYYY-MM-DD")
			return
		}
		anchor = d
	}

	summary, err := g.reports.Summary(c.Request.Context(), c.Query("period"), anchor)
	if err != nil {
		g.respondError(c, err)
		return
	}
	success(c, http.StatusOK, "Revenue summary", summary)
}

func orderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid order id")
		return 0, false
	}
	return id, true
}
