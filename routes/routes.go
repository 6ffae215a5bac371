package routes

import (
	"net/http"

	"puzzlebot/handlers"
	"puzzlebot/middleware"
	"puzzlebot/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	// Browser origins are irrelevant: every connection must present a
	// gateway ticket.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func SetupRoutes(
	router *gin.Engine,
	commandHandler *handlers.CommandHandler,
	hub *services.Hub,
	tickets *services.TicketService,
	gatherer prometheus.Gatherer,
	log logrus.FieldLogger,
) {
	api := router.Group("/api")
	api.Use(middleware.SenderAuth(tickets))
	{
		api.POST("/commands", commandHandler.HandleCommand)
	}

	// WebSocket chat: one connection per sender, identity from the ticket.
	router.GET("/ws", middleware.SenderAuth(tickets), func(c *gin.Context) {
		sender, _ := middleware.SenderFrom(c)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).WithField("user_id", sender.ID).Warn("WebSocket upgrade failed")
			return
		}

		if hub.RegisterClient(conn, sender) == nil {
			log.WithField("user_id", sender.ID).Warn("WebSocket connection refused, hub stopped")
		}
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.ConnectedClients()})
	})
}
