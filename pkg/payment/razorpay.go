package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// Razorpay is the Gateway backed by the Razorpay REST API.
type Razorpay struct {
	client *razorpay.Client
	keyID  string
}

func NewRazorpay(keyID, keySecret string) *Razorpay {
	return &Razorpay{client: razorpay.NewClient(keyID, keySecret), keyID: keyID}
}

func (r *Razorpay) KeyID() string { return r.keyID }

func (r *Razorpay) CreateOrder(_ context.Context, req OrderRequest) (*GatewayOrder, error) {
	body := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
	}
	resp, err := r.client.Order.Create(body, nil)
	if err != nil {
		return nil, err
	}
	return orderFromMap(resp)
}

func (r *Razorpay) FetchPayment(_ context.Context, paymentID string) (*GatewayPayment, error) {
	resp, err := r.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return nil, err
	}
	return paymentFromMap(resp)
}

func orderFromMap(m map[string]interface{}) (*GatewayOrder, error) {
	id := stringField(m, "id")
	if id == "" {
		return nil, fmt.Errorf("order response without id")
	}
	return &GatewayOrder{
		ID:       id,
		Amount:   intField(m, "amount"),
		Currency: stringField(m, "currency"),
		Status:   stringField(m, "status"),
	}, nil
}

func paymentFromMap(m map[string]interface{}) (*GatewayPayment, error) {
	id := stringField(m, "id")
	if id == "" {
		return nil, fmt.Errorf("payment response without id")
	}
	return &GatewayPayment{
		ID:      id,
		OrderID: stringField(m, "order_id"),
		Status:  stringField(m, "status"),
	}, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField reads a JSON number, which decodes as float64.
func intField(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
