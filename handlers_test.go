package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"spendtrack/models"
	"spendtrack/pkg/config"
	"spendtrack/pkg/dbtest"
	"spendtrack/pkg/expense"
	"spendtrack/pkg/payment"
	"spendtrack/pkg/receipt"
	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, time.May, 20, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	payments map[string]*payment.GatewayPayment
	orders   int
}

func (f *fakeGateway) KeyID() string { return "rzp_test_key" }

func (f *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.GatewayOrder, error) {
	f.orders++
	return &payment.GatewayOrder{ID: "order_" + req.Receipt, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (f *fakeGateway) FetchPayment(_ context.Context, id string) (*payment.GatewayPayment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, errors.New("no such payment")
	}
	return p, nil
}

type fakeScanner struct {
	s   *receipt.Suggestion
	err error
}

func (f fakeScanner) Scan(context.Context, io.Reader) (*receipt.Suggestion, error) {
	return f.s, f.err
}

type testEnv struct {
	r      *gin.Engine
	app    *app
	db     *gorm.DB
	tokens *token.Service
	gw     *fakeGateway
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		ReportDir:            t.TempDir(),
		CORSOrigin:           "http://localhost:5500",
		PaymentRatePerMinute: 100,
	}
	for _, m := range mutate {
		m(cfg)
	}
	db := dbtest.Open(t)
	tokens, err := token.NewService([]byte("test-signing-key"), nil)
	require.NoError(t, err)
	gw := &fakeGateway{payments: map[string]*payment.GatewayPayment{}}

	a := newApp(cfg, db, tokens, gw, fakeScanner{err: receipt.ErrNoAmount}, prometheus.NewRegistry())
	a.store = expense.NewStore(db, expense.WithClock(func() time.Time { return testNow }))

	r := gin.New()
	setupRoutes(r, a)
	return &testEnv{r: r, app: a, db: db, tokens: tokens, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string, uid uint) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if uid != 0 {
		tok, err := e.tokens.Issue(uid)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: cookieToken, Value: tok})
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, target string, payload any, uid uint) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	return e.do(t, method, target, body, "application/json", uid)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) seedUser(t *testing.T, id uint, name string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.User{ID: id, Name: name}).Error)
}

func (e *testEnv) seedProduct(t *testing.T, uid uint, amount float64, desc string, at time.Time) uint {
	t.Helper()
	p := models.Product{UserID: uid, Amount: amount, Description: desc, Category: "Food", CreatedAt: at}
	require.NoError(t, e.db.Create(&p).Error)
	return p.ID
}

func TestGuard(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/product/getProductList", nil, "", 0)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Token not provided", decode(t, w)["message"])

	req := httptest.NewRequest(http.MethodGet, "/product/getProductList", nil)
	req.AddCookie(&http.Cookie{Name: cookieToken, Value: "not-a-token"})
	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Failed to authenticate token", decode(t, w)["message"])

	expired, err := token.NewService([]byte("test-signing-key"), nil, token.WithClock(func() time.Time { return time.Now().Add(-2000 * time.Hour) }))
	require.NoError(t, err)
	old, err := expired.Issue(1)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/product/getProductList", nil)
	req.AddCookie(&http.Cookie{Name: cookieToken, Value: old})
	w = httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodGet, "/product/getProductList", nil, "", 1)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPagesAreNotGuarded(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 4, "dora")
	e.seedProduct(t, 4, 12, "Taxi", testNow)

	w := e.do(t, http.MethodGet, "/product/addProduct/4", nil, "", 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dora")
	assert.Contains(t, w.Body.String(), "Taxi")
	assert.Contains(t, w.Body.String(), `data-duration="monthly"`)

	w = e.do(t, http.MethodGet, "/product/addProduct/77?duration=daily", nil, "", 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "N/A")
	assert.Contains(t, w.Body.String(), `data-duration="daily"`)

	w = e.do(t, http.MethodGet, "/product/buyPremium?userId=4", nil, "", 0)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/product/buyPremium/4", nil, "", 0)
	assert.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/product/buyPremium/99", nil, "", 0)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", decode(t, w)["message"])
}

func TestAddProduct(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/product/addProduct", map[string]any{
		"userId": 5, "amount": 12.5, "description": "<b>Lunch</b>", "category": "Food",
	}, 5)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	assert.Equal(t, "/product/addProduct/5", w.Header().Get("Location"))

	var user models.User
	require.NoError(t, e.db.First(&user, 5).Error, "user created on first product")
	var p models.Product
	require.NoError(t, e.db.Where("user_id = ?", 5).First(&p).Error)
	assert.Equal(t, 12.5, p.Amount)
	assert.Equal(t, "Lunch", p.Description)

	form := url.Values{"amount": {"3"}, "description": {"Tea"}, "category": {"Food"}}
	w = e.do(t, http.MethodPost, "/product/addProduct", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", 5)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	var n int64
	e.db.Model(&models.Product{}).Where("user_id = ?", 5).Count(&n)
	assert.Equal(t, int64(2), n)
}

func TestAddProductRejects(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/product/addProduct", map[string]any{"userId": "6", "amount": 1}, 5)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.doJSON(t, http.MethodPost, "/product/addProduct", map[string]any{"description": "no amount"}, 5)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var n int64
	e.db.Model(&models.Product{}).Count(&n)
	assert.Zero(t, n)
}

func TestProductListScopedToCaller(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 1, "a")
	e.seedUser(t, 2, "b")
	e.seedProduct(t, 1, 5, "Coffee", testNow)
	e.seedProduct(t, 2, 9, "Other", testNow)

	w := e.do(t, http.MethodGet, "/product/getProductList", nil, "", 1)
	require.Equal(t, http.StatusOK, w.Code)
	products := decode(t, w)["products"].([]any)
	require.Len(t, products, 1)
	assert.Equal(t, "Coffee", products[0].(map[string]any)["description"])
}

func TestDeleteProduct(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 1, "a")
	e.seedUser(t, 2, "b")
	mine := e.seedProduct(t, 1, 5, "Coffee", testNow)
	theirs := e.seedProduct(t, 2, 9, "Other", testNow)

	w := e.do(t, http.MethodDelete, "/product/deleteProduct/999", nil, "", 1)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found", decode(t, w)["message"])

	w = e.do(t, http.MethodDelete, "/product/deleteProduct/"+itoa(theirs), nil, "", 1)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/product/deleteProduct/"+itoa(mine)+"?userId=2", nil, "", 1)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(t, http.MethodDelete, "/product/deleteProduct/"+itoa(mine)+"?userId=1", nil, "", 1)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product deleted successfully", decode(t, w)["message"])

	var n int64
	e.db.Model(&models.Product{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestExpensesPagination(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 3, "c")
	for i := 0; i < 7; i++ {
		e.seedProduct(t, 3, float64(i+1), "item", testNow.Add(-time.Duration(i)*time.Hour))
	}
	e.seedProduct(t, 3, 100, "last month", testNow.AddDate(0, -1, 0))

	w := e.do(t, http.MethodGet, "/product/expenses?duration=weekly&userId=3&page=2", nil, "", 3)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["expenses"], 2)
	assert.Equal(t, float64(2), body["totalPages"])
	assert.Equal(t, true, body["totalKnown"])

	w = e.do(t, http.MethodGet, "/product/expenses?duration=yearly", nil, "", 3)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Empty(t, body["expenses"])
	assert.Equal(t, float64(0), body["totalPages"])

	w = e.do(t, http.MethodGet, "/product/expenses?duration=weekly&userId=4", nil, "", 3)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLeaderboard(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 1, "small")
	e.seedUser(t, 2, "big")
	e.seedProduct(t, 1, 50, "one", testNow)
	e.seedProduct(t, 2, 30, "two", testNow)
	e.seedProduct(t, 2, 30, "three", testNow)

	w := e.do(t, http.MethodGet, "/product/leaderboard", nil, "", 1)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	board := body["leaderboard"].([]any)
	require.Len(t, board, 2)
	assert.Equal(t, "big", board[0].(map[string]any)["username"])
	assert.Equal(t, float64(60), board[0].(map[string]any)["totalExpense"])
}

func TestDownloadExpenses(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 8, "h")
	e.seedProduct(t, 8, 5, "Coffee", testNow)
	e.seedProduct(t, 8, 20, "Book", testNow)

	w := e.do(t, http.MethodGet, "/product/downloadExpenses?userId=8", nil, "", 8)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Coffee: $5\nBook: $20", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "expenses_8.txt")

	entries, err := os.ReadDir(e.app.cfg.ReportDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged report removed")

	w = e.do(t, http.MethodGet, "/product/downloadExpenses", nil, "", 404)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentFlow(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, 9, "payer")

	w := e.do(t, http.MethodPost, "/product/buyPremium", nil, "", 9)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	orderID := body["orderId"].(string)
	assert.Equal(t, "rzp_test_key", body["keyId"])
	assert.Equal(t, float64(1000), body["amount"])

	var userCookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookieUserID {
			userCookie = ck
		}
	}
	require.NotNil(t, userCookie)
	assert.Equal(t, "9", userCookie.Value)
	assert.True(t, userCookie.HttpOnly)

	e.gw.payments["pay_bad"] = &payment.GatewayPayment{ID: "pay_bad", OrderID: "order_other", Status: "captured"}
	w = e.doJSON(t, http.MethodPost, "/product/verifyPayment", map[string]any{"paymentId": "pay_bad", "orderId": orderID, "userId": "9"}, 9)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": false, "message": "Payment verification failed"}, decode(t, w))

	e.gw.payments["pay_ok"] = &payment.GatewayPayment{ID: "pay_ok", OrderID: orderID, Status: "captured"}
	w = e.doJSON(t, http.MethodPost, "/product/verifyPayment", map[string]any{"paymentId": "pay_ok", "orderId": orderID}, 9)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": true}, decode(t, w))

	var u models.User
	require.NoError(t, e.db.First(&u, 9).Error)
	assert.True(t, u.IsPremium)

	// another account replaying the same payment stays on the free tier
	e.seedUser(t, 10, "replayer")
	w = e.doJSON(t, http.MethodPost, "/product/verifyPayment", map[string]any{"paymentId": "pay_ok", "orderId": orderID}, 10)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"success": false, "message": "Payment verification failed"}, decode(t, w))
	var other models.User
	require.NoError(t, e.db.First(&other, 10).Error)
	assert.False(t, other.IsPremium)

	w = e.doJSON(t, http.MethodPost, "/product/verifyPayment", map[string]any{"paymentId": "pay_missing", "orderId": orderID}, 9)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPaymentRateLimit(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.PaymentRatePerMinute = 1 })

	w := e.do(t, http.MethodPost, "/product/buyPremium", nil, "", 9)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = e.do(t, http.MethodPost, "/product/buyPremium", nil, "", 9)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// other users have their own budget
	w = e.do(t, http.MethodPost, "/product/buyPremium", nil, "", 10)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, e.gw.orders)
}

func TestSignupLoginLogout(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/user/signup", map[string]any{"name": "Eve", "email": "eve@example.com", "password": "secret1"}, 0)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.doJSON(t, http.MethodPost, "/user/signup", map[string]any{"name": "Eve", "email": "eve@example.com", "password": "secret1"}, 0)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = e.doJSON(t, http.MethodPost, "/user/signup", map[string]any{"email": "x@example.com", "password": "123"}, 0)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.doJSON(t, http.MethodPost, "/user/login", map[string]any{"email": "eve@example.com", "password": "nope123"}, 0)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.doJSON(t, http.MethodPost, "/user/login", map[string]any{"email": "eve@example.com", "password": "secret1"}, 0)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	uid, err := e.tokens.Verify(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, float64(uid), body["userId"])

	var jwtCookie *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookieToken {
			jwtCookie = ck
		}
	}
	require.NotNil(t, jwtCookie)
	assert.True(t, jwtCookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/product/getProductList", nil)
	req.AddCookie(jwtCookie)
	rec := httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	w = e.do(t, http.MethodPost, "/user/logout", nil, "", 0)
	require.Equal(t, http.StatusOK, w.Code)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == cookieToken {
			assert.Empty(t, ck.Value)
			assert.True(t, ck.MaxAge < 0)
		}
	}
}

func multipartReceipt(t *testing.T) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", "receipt.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png bytes"))
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestScanReceipt(t *testing.T) {
	e := newTestEnv(t)

	body, ct := multipartReceipt(t)
	w := e.do(t, http.MethodPost, "/product/scanReceipt", body, ct, 1)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	e.app.scanner = fakeScanner{s: &receipt.Suggestion{Amount: 420, Raw: "TOTAL 420.00"}}
	body, ct = multipartReceipt(t)
	w = e.do(t, http.MethodPost, "/product/scanReceipt", body, ct, 1)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"amount": float64(420), "raw": "TOTAL 420.00"}, decode(t, w))

	w = e.do(t, http.MethodPost, "/product/scanReceipt", nil, "", 1)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var n int64
	e.db.Model(&models.Product{}).Count(&n)
	assert.Zero(t, n, "scanning never stores a product")
}

func TestHealthzAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/healthz", nil, "", 0)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	w = e.do(t, http.MethodGet, "/metrics", nil, "", 0)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `spendtrack_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}
