package main

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"spendtrack/models"
	"spendtrack/pkg/expense"
	"spendtrack/pkg/receipt"
	"spendtrack/pkg/report"

	"github.com/gin-gonic/gin"
)

const maxReceiptSize = 5 * 1024 * 1024

var internalError = gin.H{"message": "Internal Server Error"}

// flexID accepts a user id sent either as a JSON number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

// subject resolves the user a guarded request acts on. An explicit id must
// name the caller; an omitted id means the caller.
func subject(c *gin.Context, raw string) (uint, bool) {
	uid := c.GetUint(ctxUserID)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uid, true
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid userId"})
		return 0, false
	}
	if uint(id) != uid {
		c.JSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
		return 0, false
	}
	return uid, true
}

func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (a *app) healthzHandler(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		requestLog(c).Error("health check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// productPageHandler renders the expense page. Unknown users render as "N/A".
func (a *app) productPageHandler(c *gin.Context) {
	userID, ok := parseID(c.Param("userId"))
	if !ok {
		c.String(http.StatusBadRequest, "Invalid userId")
		return
	}
	duration := c.DefaultQuery("duration", string(expense.Monthly))

	username := "N/A"
	isPremium := false
	products := []models.Product{}
	user, err := a.store.UserWithProducts(c.Request.Context(), userID)
	switch {
	case errors.Is(err, expense.ErrUserNotFound):
	case err != nil:
		requestLog(c).Error("render product page", slog.Any("error", err))
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	default:
		if user.Name != "" {
			username = user.Name
		}
		isPremium = user.IsPremium
		products = user.Products
	}

	c.HTML(http.StatusOK, "product/addProduct", gin.H{
		"username":   username,
		"isPremium":  isPremium,
		"products":   products,
		"userId":     userID,
		"totalPages": expense.TotalPages(int64(len(products)), expense.PageSize),
		"duration":   duration,
		"durations":  []expense.Duration{expense.Daily, expense.Weekly, expense.Monthly},
	})
}

func (a *app) buyPremiumPageHandler(c *gin.Context) {
	c.HTML(http.StatusOK, "product/buyPremium", gin.H{"userId": c.Query("userId")})
}

func (a *app) buyPremiumUserPageHandler(c *gin.Context) {
	userID, ok := parseID(c.Param("userId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if _, err := a.store.User(c.Request.Context(), userID); err != nil {
		if errors.Is(err, expense.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
			return
		}
		requestLog(c).Error("render premium page", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
		return
	}
	c.HTML(http.StatusOK, "product/buyPremium", gin.H{"userId": userID})
}

func (a *app) addProductHandler(c *gin.Context) {
	var req struct {
		UserID      flexID  `json:"userId" form:"userId"`
		Amount      float64 `json:"amount" form:"amount" binding:"required,gt=0"`
		Description string  `json:"description" form:"description"`
		Category    string  `json:"category" form:"category"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	uid, ok := subject(c, string(req.UserID))
	if !ok {
		return
	}
	_, err := a.store.Create(c.Request.Context(), expense.NewProduct{
		UserID:      uid,
		Amount:      req.Amount,
		Description: strings.TrimSpace(a.sanitizer.Sanitize(req.Description)),
		Category:    strings.TrimSpace(a.sanitizer.Sanitize(req.Category)),
	})
	if err != nil {
		requestLog(c).Error("add product", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}
	c.Redirect(http.StatusFound, fmt.Sprintf("/product/addProduct/%d", uid))
}

type productItem struct {
	ID          uint    `json:"id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

func (a *app) productListHandler(c *gin.Context) {
	products, err := a.store.ListAll(c.Request.Context(), c.GetUint(ctxUserID))
	if err != nil {
		requestLog(c).Error("fetch product list", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
		return
	}
	out := make([]productItem, 0, len(products))
	for _, p := range products {
		out = append(out, productItem{ID: p.ID, Amount: p.Amount, Description: p.Description, Category: p.Category})
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

func (a *app) deleteProductHandler(c *gin.Context) {
	productID, ok := parseID(c.Param("productId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
		return
	}
	uid, ok := subject(c, c.Query("userId"))
	if !ok {
		return
	}
	if err := a.store.Delete(c.Request.Context(), productID, uid); err != nil {
		if errors.Is(err, expense.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Product not found"})
			return
		}
		requestLog(c).Error("delete product", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

func (a *app) leaderboardHandler(c *gin.Context) {
	board, err := a.store.Leaderboard(c.Request.Context())
	if err != nil {
		requestLog(c).Error("fetch leaderboard", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "leaderboard": board})
}

func (a *app) expensesHandler(c *gin.Context) {
	uid, ok := subject(c, c.Query("userId"))
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}
	duration := c.Query("duration")
	ctx := c.Request.Context()

	items, err := a.store.List(ctx, uid, duration, expense.Offset(page, expense.PageSize), expense.PageSize)
	if err != nil {
		requestLog(c).Error("fetch expenses", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal server error"})
		return
	}
	count := a.store.Count(ctx, uid, duration)
	if !count.Known {
		requestLog(c).Warn("expense count unavailable", slog.Any("error", count.Err))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"expenses":   items,
		"totalPages": count.Pages(),
		"totalKnown": count.Known,
	})
}

// downloadExpensesHandler streams the report from a staged file that is
// removed once the response is written.
func (a *app) downloadExpensesHandler(c *gin.Context) {
	uid, ok := subject(c, c.Query("userId"))
	if !ok {
		return
	}
	content, err := a.reports.Generate(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, report.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		requestLog(c).Error("generate report", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching expenses data"})
		return
	}
	err = report.WithArtifact(a.cfg.ReportDir, uid, content, func(art *report.Artifact) error {
		c.FileAttachment(art.Path, art.Name)
		return nil
	})
	if err != nil {
		requestLog(c).Error("serve report", slog.Any("error", err))
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error fetching expenses data"})
		}
		return
	}
	a.metrics.RecordReport()
}

func (a *app) scanReceiptHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxReceiptSize+64*1024)
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file missing"})
		return
	}
	if fh.Size > maxReceiptSize {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file too large (max 5MB)"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file unreadable"})
		return
	}
	defer f.Close()

	s, err := a.scanner.Scan(c.Request.Context(), f)
	switch {
	case errors.Is(err, receipt.ErrNoAmount):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "No amount found on receipt"})
	case errors.Is(err, image.ErrFormat):
		c.JSON(http.StatusBadRequest, gin.H{"message": "unsupported image format"})
	case err != nil:
		requestLog(c).Error("scan receipt", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
	default:
		c.JSON(http.StatusOK, gin.H{"amount": s.Amount, "raw": s.Raw})
	}
}
