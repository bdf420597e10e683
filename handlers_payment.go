package main

import (
	"log/slog"
	"net/http"
	"strconv"

	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
)

func (a *app) createIntentHandler(c *gin.Context) {
	uid := c.GetUint(ctxUserID)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieUserID, strconv.FormatUint(uint64(uid), 10), int(token.DefaultTTL.Seconds()), "/", "", a.cfg.CookieSecure, true)

	intent, err := a.payments.CreateIntent(c.Request.Context(), uid)
	if err != nil {
		a.metrics.RecordPayment("error")
		requestLog(c).Error("create payment intent", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
		return
	}
	a.metrics.RecordPayment("intent")
	c.JSON(http.StatusCreated, gin.H{
		"orderId": intent.OrderID,
		"keyId":   intent.KeyID,
		"amount":  intent.Amount,
	})
}

func (a *app) verifyPaymentHandler(c *gin.Context) {
	var req struct {
		PaymentID string `json:"paymentId" binding:"required"`
		OrderID   string `json:"orderId" binding:"required"`
		UserID    flexID `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	uid, ok := subject(c, string(req.UserID))
	if !ok {
		return
	}
	res, err := a.payments.ConfirmPayment(c.Request.Context(), req.PaymentID, req.OrderID, uid)
	if err != nil {
		a.metrics.RecordPayment("error")
		requestLog(c).Error("verify payment", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal Server Error"})
		return
	}
	if !res.Success {
		a.metrics.RecordPayment("rejected")
		c.JSON(http.StatusOK, gin.H{"success": false, "message": res.Message})
		return
	}
	a.metrics.RecordPayment("verified")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
