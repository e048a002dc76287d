package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/burnerhq/burnerd/internal/pin"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/unlock", h.Unlock)
		api.GET("/registry", h.Registry)

		guarded := api.Group("", requireUnlocked(h.gate))
		{
			guarded.GET("/wallets", h.ListWallets)
			guarded.POST("/wallets", h.CreateWallet)
			guarded.GET("/wallets/:address", h.GetWallet)
			guarded.PATCH("/wallets/:address", h.RenameWallet)
			guarded.DELETE("/wallets/:address", h.BurnWallet)
			guarded.GET("/wallets/:address/qr", h.ReceiveQR)
			guarded.GET("/wallets/:address/balances", h.WalletBalances)
			guarded.GET("/wallets/:address/history", h.WalletHistory)

			guarded.GET("/events", h.Events)
			guarded.POST("/transfer", h.Transfer)
			guarded.POST("/bridge", h.Bridge)
			guarded.POST("/refresh", h.Refresh)
		}
	}

	return r
}

// requireUnlocked rejects everything behind the PIN gate until a successful
// unlock happened this run.
func requireUnlocked(gate *pin.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !gate.Unlocked() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": pin.ErrLocked.Error()})
			return
		}
		c.Next()
	}
}
