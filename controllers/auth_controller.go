package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go_pipeline_project/middleware"
	"go_pipeline_project/models"
)

// AuthController handles operator authentication.
type AuthController struct {
	db        *gorm.DB
	jwtSecret string
}

// NewAuthController creates the auth controller.
func NewAuthController(db *gorm.DB, jwtSecret string) *AuthController {
	return &AuthController{db: db, jwtSecret: jwtSecret}
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates an operator and issues a token.
// POST /api/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "username and password are required",
		})
		return
	}

	ip := c.ClientIP()

	var operator models.OperatorUser
	err := ac.db.Where("username = ? AND is_active = ?", req.Username, true).First(&operator).Error
	if err != nil || !operator.CheckPassword(req.Password) {
		middleware.RecordLoginAttempt(ip, false)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid username or password",
		})
		return
	}

	token, err := middleware.IssueOperatorToken(ac.jwtSecret, operator.Username, operator.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	middleware.RecordLoginAttempt(ip, true)
	ac.db.Model(&operator).Update("last_login_at", time.Now())

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"username":   operator.Username,
		"role":       operator.Role,
		"expires_in": int(middleware.TokenTTL.Seconds()),
	})
}

// Me returns the authenticated operator's identity.
// GET /api/auth/me
func (ac *AuthController) Me(c *gin.Context) {
	username, _ := c.Get("username")
	role, _ := c.Get("role")
	c.JSON(http.StatusOK, gin.H{
		"username": username,
		"role":     role,
	})
}
