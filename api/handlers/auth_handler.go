// api/handlers/auth_handler.go
package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Annany2002/nebula-migrate/api/middleware"
	"github.com/Annany2002/nebula-migrate/api/models"
	"github.com/Annany2002/nebula-migrate/config"
	"github.com/Annany2002/nebula-migrate/internal/auth"
	"github.com/Annany2002/nebula-migrate/internal/logger"
	"github.com/Annany2002/nebula-migrate/internal/storage"
)

var (
	customLog = logger.NewLogger()
)

// userID returns the id the auth middleware put on the context.
func userID(c *gin.Context) string {
	return c.GetString(middleware.UserIDKey)
}

// AuthHandler holds dependencies for authentication handlers.
type AuthHandler struct {
	DB  *sql.DB
	Cfg *config.Config
}

// NewAuthHandler creates a new AuthHandler with dependencies.
func NewAuthHandler(db *sql.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		DB:  db,
		Cfg: cfg,
	}
}

// Signup handles user registration requests.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Handler: Signup binding error: %v", err)
		_ = c.Error(err)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		customLog.Warnf("Handler: Failed to hash password during signup for email %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	userId, err := storage.CreateUser(c.Request.Context(), h.DB, uuid.New().String(), req.Username, req.Email, hashedPassword)
	if err != nil {
		customLog.Warnf("Handler: Failed to create user %s: %v", req.Email, err)
		_ = c.Error(err)
		return
	}

	customLog.Printf("Handler: Successfully registered user with email %s", req.Email)
	c.JSON(http.StatusCreated, gin.H{"user_id": userId, "message": "User registered successfully"})
}

// Login handles user login requests and issues a JWT on success. An unknown
// email and a wrong password get the same answer.
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		customLog.Warnf("Handler: Login binding error: %v", err)
		_ = c.Error(err)
		return
	}

	user, err := storage.FindUserByEmail(c.Request.Context(), h.DB, req.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		customLog.Warnf("Handler: Login attempt for unknown email %s", req.Email)
		_ = c.Error(storage.ErrInvalidCredentials)
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		customLog.Warnf("Handler: Login attempt failed for email %s: invalid password", user.Email)
		_ = c.Error(storage.ErrInvalidCredentials)
		return
	}

	tokenString, err := auth.GenerateJWT(user.UserId, h.Cfg.JWTSecret, h.Cfg.JWTExpiration)
	if err != nil {
		customLog.Warnf("Handler: Failed to generate JWT for user %s: %v", user.UserId, err)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Message: "Logged in successfully", User: *user, Token: tokenString})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := storage.FindUserByID(c.Request.Context(), h.DB, userID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}
