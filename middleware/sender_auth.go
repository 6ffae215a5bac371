package middleware

import (
	"net/http"
	"strings"

	"puzzlebot/services"

	"github.com/gin-gonic/gin"
)

const (
	SenderIDKey   = "sender_id"
	SenderNameKey = "sender_name"
)

// SenderAuth verifies the gateway ticket from the Authorization header, or
// from the "ticket" query parameter for websocket upgrades, and stores the
// sender in the context.
func SenderAuth(tickets *services.TicketService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket := c.Query("ticket")
		if header := c.GetHeader("Authorization"); header != "" {
			var ok bool
			ticket, ok = strings.CutPrefix(header, "Bearer ")
			if !ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be a bearer ticket"})
				return
			}
		}
		if ticket == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Sender ticket required"})
			return
		}

		sender, err := tickets.Verify(ticket)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid sender ticket"})
			return
		}

		c.Set(SenderIDKey, sender.ID)
		c.Set(SenderNameKey, sender.Name)
		c.Next()
	}
}

// SenderFrom returns the sender stored by SenderAuth.
func SenderFrom(c *gin.Context) (services.Sender, bool) {
	id, ok := c.Get(SenderIDKey)
	if !ok {
		return services.Sender{}, false
	}
	return services.Sender{ID: id.(int64), Name: c.GetString(SenderNameKey)}, true
}
