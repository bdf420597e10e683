package main

import (
	"errors"
	"log/slog"
	"net/http"

	"spendtrack/pkg/account"
	"spendtrack/pkg/token"

	"github.com/gin-gonic/gin"
)

func (a *app) signupHandler(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	user, err := account.Register(c.Request.Context(), a.db, a.sanitizer.Sanitize(req.Name), req.Email, req.Password)
	switch {
	case errors.Is(err, account.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, account.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case err != nil:
		requestLog(c).Error("register user", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
	default:
		c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "userId": user.ID})
	}
}

func (a *app) loginHandler(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	user, err := account.Authenticate(c.Request.Context(), a.db, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid credentials"})
			return
		}
		requestLog(c).Error("authenticate", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, internalError)
		return
	}
	signed, err := a.tokens.Issue(user.ID)
	if err != nil {
		requestLog(c).Error("issue token", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to generate token"})
		return
	}
	a.setTokenCookie(c, signed, int(token.DefaultTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"userId": user.ID, "token": signed})
}

func (a *app) logoutHandler(c *gin.Context) {
	a.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (a *app) setTokenCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieToken, value, maxAge, "/", "", a.cfg.CookieSecure, true)
}
