package handler

import (
	"net/http"
	"strings"

	"djchat/backend/internal/models"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// GetAnonID створює користувача та повертає JWT
func (h *Handler) GetAnonID(c *gin.Context) {
	user := &models.User{DisplayName: c.Query("name")}
	if err := h.Store.SaveUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	token, err := h.Auth.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": user.ID})
}

// RequireUser validates the bearer token and stores the user id on the context.
func (h *Handler) RequireUser(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

// authenticate reads the token from the Authorization header or, for
// browsers that cannot set headers on a WebSocket, the token query parameter.
func (h *Handler) authenticate(c *gin.Context) (string, bool) {
	tokenString := c.Query("token")
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenString == "" {
		return "", false
	}
	userID, err := h.Auth.Validate(tokenString)
	if err != nil {
		return "", false
	}
	return userID, true
}
