package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const OutputIndexKey = "output_index"

// RequireValidChannelID ensures the path param ":id" is a UUID.
func RequireValidChannelID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := uuid.Parse(c.Param("id")); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid channel id"})
			return
		}
		c.Next()
	}
}

// RequireValidOutputIndex ensures the path param ":index" is an int >= 0 and
// stores it under OutputIndexKey.
func RequireValidOutputIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		i, err := strconv.Atoi(c.Param("index"))
		if err != nil || i < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid output index"})
			return
		}
		c.Set(OutputIndexKey, i)
		c.Next()
	}
}

// OutputIndex returns the index validated by RequireValidOutputIndex.
func OutputIndex(c *gin.Context) int {
	return c.GetInt(OutputIndexKey)
}
