package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-engine/internal/auth"
	"github.com/ignatzorin/escrow-engine/internal/config"
	"github.com/ignatzorin/escrow-engine/internal/http/middleware"
	"github.com/ignatzorin/escrow-engine/internal/interface/http/handler"
)

type Handlers struct {
	Health      *handler.HealthHandler
	WS          *handler.WSHandler
	Orders      *handler.OrderHandler
	Submissions *handler.SubmissionHandler
	Disputes    *handler.DisputeHandler
	Admin       *handler.AdminHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens *auth.TokenManager) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(tokens))

	api.GET("/ws", h.WS.Handle)

	// Команды меняют деньги и статусы, поэтому ограничены по частоте.
	limited := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
	id := middleware.UUIDValidator("id")

	orders := api.Group("/orders")
	{
		orders.POST("", limited, h.Orders.Create)
		orders.GET("/my", h.Orders.ListMy)
		orders.GET("/:id", id, h.Orders.Get)
		orders.GET("/:id/deadlines", id, h.Orders.Deadlines)
		orders.GET("/:id/audit", id, h.Orders.Audit)
		orders.GET("/:id/escrow", id, h.Orders.Escrow)
		orders.GET("/:id/disputes", id, h.Orders.Disputes)

		orders.POST("/:id/accept", id, limited, h.Orders.Accept)
		orders.POST("/:id/decline", id, limited, h.Orders.Decline)
		orders.POST("/:id/start", id, limited, h.Orders.Start)
		orders.POST("/:id/deliver", id, limited, h.Orders.Deliver)
		orders.POST("/:id/release", id, limited, h.Orders.Release)
		orders.POST("/:id/cancel", id, limited, h.Orders.Cancel)
		orders.POST("/:id/extension", id, limited, h.Orders.RequestExtension)
		orders.POST("/:id/extension/approve", id, limited, h.Orders.ApproveExtension)
		orders.POST("/:id/extension/decline", id, limited, h.Orders.DeclineExtension)
		orders.POST("/:id/messages", id, limited, h.Orders.PostMessage)
		orders.POST("/:id/dispute", id, limited, h.Orders.OpenDispute)
		orders.POST("/:id/check-expired", id, limited, h.Orders.CheckExpired)
	}

	submissions := api.Group("/submissions")
	{
		submissions.POST("", limited, h.Submissions.Create)
		submissions.GET("/my", h.Submissions.ListMy)
		submissions.GET("/:id", id, h.Submissions.Get)
		submissions.GET("/:id/deadline", id, h.Submissions.Deadline)
		submissions.GET("/:id/audit", id, h.Submissions.Audit)
		submissions.GET("/:id/escrow", id, h.Submissions.Escrow)
		submissions.GET("/:id/disputes", id, h.Submissions.Disputes)

		submissions.POST("/:id/approve", id, limited, h.Submissions.Approve)
		submissions.POST("/:id/reject", id, limited, h.Submissions.Reject)
		submissions.POST("/:id/revision", id, limited, h.Submissions.RequestRevision)
		submissions.POST("/:id/accept-rejection", id, limited, h.Submissions.AcceptRejection)
		submissions.POST("/:id/resubmit", id, limited, h.Submissions.Resubmit)
		submissions.POST("/:id/cancel", id, limited, h.Submissions.Cancel)
		submissions.POST("/:id/dispute", id, limited, h.Submissions.OpenDispute)
		submissions.POST("/:id/check-expired", id, limited, h.Submissions.CheckExpired)
	}

	api.GET("/disputes/:id", id, h.Disputes.Get)
	api.POST("/disputes/:id/evidence", id, limited, h.Disputes.AddEvidence)
	api.POST("/evidence", limited, h.Disputes.Upload)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireRole(auth.RoleAdmin))
	{
		admin.POST("/disputes/:id/resolve", id, h.Disputes.Resolve)
		admin.POST("/sweep", h.Admin.Sweep)
	}

	return r
}
