package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health 是 GET /health 的处理函数。
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
