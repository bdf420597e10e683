package main

import (
	"context"
	"embed"
	"html/template"
	"io"

	"spendtrack/pkg/config"
	"spendtrack/pkg/expense"
	"spendtrack/pkg/metrics"
	"spendtrack/pkg/payment"
	"spendtrack/pkg/receipt"
	"spendtrack/pkg/report"
	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

//go:embed templates/product/*.html
var templatesFS embed.FS

// receiptScanner suggests an amount from an uploaded receipt image.
type receiptScanner interface {
	Scan(ctx context.Context, r io.Reader) (*receipt.Suggestion, error)
}

// app carries the dependencies shared by every handler.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	tokens    *token.Service
	store     *expense.Store
	reports   *report.Generator
	payments  *payment.Coordinator
	scanner   receiptScanner
	metrics   *metrics.Collector
	gatherer  prometheus.Gatherer
	sanitizer *bluemonday.Policy
	limiter   *rateLimiter
}

func newApp(cfg *config.Config, db *gorm.DB, tokens *token.Service, gw payment.Gateway, scanner receiptScanner, reg *prometheus.Registry) *app {
	store := expense.NewStore(db)
	return &app{
		cfg:       cfg,
		db:        db,
		tokens:    tokens,
		store:     store,
		reports:   report.NewGenerator(store),
		payments:  payment.NewCoordinator(db, gw),
		scanner:   scanner,
		metrics:   metrics.NewCollector(reg),
		gatherer:  reg,
		sanitizer: bluemonday.StrictPolicy(),
		limiter:   newRateLimiter(cfg.PaymentRatePerMinute),
	}
}

func loadTemplates() *template.Template {
	return template.Must(template.New("").ParseFS(templatesFS, "templates/product/*.html"))
}

func setupRoutes(r *gin.Engine, a *app) {
	r.Use(gin.Recovery(), requestContext(), requestLogger(a.metrics), cors(a.cfg.CORSOrigin))
	r.SetHTMLTemplate(loadTemplates())
	if a.cfg.StaticDir != "" {
		r.Static("/public", a.cfg.StaticDir)
	}

	r.GET("/healthz", a.healthzHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler(a.gatherer)))

	user := r.Group("/user")
	user.POST("/signup", a.signupHandler)
	user.POST("/login", a.loginHandler)
	user.POST("/logout", a.logoutHandler)

	// rendered pages
	pages := r.Group("/product")
	pages.GET("/addProduct/:userId", a.productPageHandler)
	pages.GET("/buyPremium", a.buyPremiumPageHandler)
	pages.GET("/buyPremium/:userId", a.buyPremiumUserPageHandler)

	api := r.Group("/product", authRequired(a.tokens))
	api.POST("/addProduct", a.addProductHandler)
	api.GET("/getProductList", a.productListHandler)
	api.DELETE("/deleteProduct/:productId", a.deleteProductHandler)
	api.GET("/leaderboard", a.leaderboardHandler)
	api.GET("/expenses", a.expensesHandler)
	api.GET("/downloadExpenses", a.downloadExpensesHandler)
	api.POST("/scanReceipt", a.scanReceiptHandler)

	paid := api.Group("", a.limiter.middleware())
	paid.POST("/buyPremium", a.createIntentHandler)
	paid.POST("/verifyPayment", a.verifyPaymentHandler)
}
