// Package payment coordinates the premium upgrade: it opens an order with the
// payment gateway and later confirms the captured payment before flipping the
// user's premium flag.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendtrack/models"

	"gorm.io/gorm"
)

// PremiumAmount is the upgrade price in minor units (paise).
const (
	PremiumAmount int64 = 1000
	Currency            = "INR"
)

var ErrUpstream = errors.New("payment gateway error")

const (
	msgUserNotFound       = "User not found"
	msgVerificationFailed = "Payment verification failed"
)

type State int

const (
	Created State = iota
	AwaitingCapture
	Captured
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case AwaitingCapture:
		return "awaiting_capture"
	case Captured:
		return "captured"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// StateFromStatus maps a gateway payment status onto the local state machine.
func StateFromStatus(status string) State {
	switch strings.ToLower(status) {
	case "captured":
		return Captured
	case "authorized":
		return AwaitingCapture
	case "failed", "refunded":
		return Failed
	}
	return Created
}

// ReceiptID is the merchant reference attached to a gateway order.
func ReceiptID(now time.Time, userID uint) string {
	return fmt.Sprintf("order_%d_%d", now.UnixMilli(), userID)
}

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
}

// GatewayOrder is the gateway's view of a created order.
type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// GatewayPayment is the gateway's view of a payment.
type GatewayPayment struct {
	ID      string
	OrderID string
	Status  string
}

type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// Intent is what the browser needs to open the checkout.
type Intent struct {
	OrderID  string
	KeyID    string
	Amount   int64
	Currency string
	Receipt  string
}

type Result struct {
	Success bool
	Message string
}

type Coordinator struct {
	db  *gorm.DB
	gw  Gateway
	now func() time.Time
}

func NewCoordinator(db *gorm.DB, gw Gateway) *Coordinator {
	return &Coordinator{db: db, gw: gw, now: time.Now}
}

// CreateIntent opens a gateway order for the premium upgrade and records it.
func (c *Coordinator) CreateIntent(ctx context.Context, userID uint) (*Intent, error) {
	receipt := ReceiptID(c.now(), userID)
	o, err := c.gw.CreateOrder(ctx, OrderRequest{Amount: PremiumAmount, Currency: Currency, Receipt: receipt})
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrUpstream, err)
	}
	row := models.Order{
		ID:       o.ID,
		UserID:   userID,
		Receipt:  receipt,
		Amount:   o.Amount,
		Currency: o.Currency,
		Status:   Created.String(),
	}
	if err := c.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("record order %s: %w", o.ID, err)
	}
	return &Intent{OrderID: o.ID, KeyID: c.gw.KeyID(), Amount: o.Amount, Currency: o.Currency, Receipt: receipt}, nil
}

// ConfirmPayment upgrades userID only when the gateway reports the payment as
// captured against orderID and orderID is an order this system opened for
// userID. An order already captured by another payment is not reusable.
func (c *Coordinator) ConfirmPayment(ctx context.Context, paymentID, orderID string, userID uint) (Result, error) {
	p, err := c.gw.FetchPayment(ctx, paymentID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fetch payment %s: %v", ErrUpstream, paymentID, err)
	}

	var order models.Order
	if err := c.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("payment confirmation for unknown order", "order_id", orderID, "user_id", userID)
			return Result{Message: msgVerificationFailed}, nil
		}
		return Result{}, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if !ownsOrder(order, paymentID, userID) {
		slog.Warn("payment confirmation rejected", "order_id", orderID, "user_id", userID, "owner_id", order.UserID)
		return Result{Message: msgVerificationFailed}, nil
	}

	state := StateFromStatus(p.Status)
	if p.OrderID != orderID {
		return Result{Message: msgVerificationFailed}, nil
	}
	if order.Status != Captured.String() {
		c.markOrder(ctx, orderID, paymentID, state)
	}
	if state != Captured {
		return Result{Message: msgVerificationFailed}, nil
	}

	var user models.User
	if err := c.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Message: msgUserNotFound}, nil
		}
		return Result{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	user.IsPremium = true
	if err := c.db.WithContext(ctx).Save(&user).Error; err != nil {
		return Result{}, fmt.Errorf("save premium flag: %w", err)
	}
	return Result{Success: true}, nil
}

// ownsOrder reports whether userID may confirm paymentID against order.
func ownsOrder(order models.Order, paymentID string, userID uint) bool {
	if order.UserID != userID {
		return false
	}
	if order.Status == Captured.String() && order.PaymentID != "" && order.PaymentID != paymentID {
		return false
	}
	return true
}

func (c *Coordinator) markOrder(ctx context.Context, orderID, paymentID string, state State) {
	err := c.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).
		Updates(map[string]any{"status": state.String(), "payment_id": paymentID}).Error
	if err != nil {
		slog.Warn("order status update failed", "order_id", orderID, "error", err)
	}
}
