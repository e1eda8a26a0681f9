package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/leadership-program/nomination-api/internal/middleware"
	"github.com/leadership-program/nomination-api/internal/models"
	"github.com/leadership-program/nomination-api/pkg/config"
)

func registerRoutes(r *gin.Engine, cfg *config.Config, app *application) {
	r.GET("/health", app.ops.Health)
	r.GET("/ready", app.ops.Ready)
	r.GET("/metrics", app.ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix+"/v1", middleware.WithResponseMeta(), middleware.Actor())

	// public
	api.POST("/auth/login", app.auth.Login)
	api.POST("/nominations", app.nominations.Create)
	api.GET("/registration/:id", app.registration.Get)
	api.POST("/nominations/:id/register", app.registration.Register)
	api.POST("/participants/login", app.participants.Login)
	api.POST("/members/login", app.members.Login)
	api.POST("/members/forgot-password", app.members.ForgotPassword)
	api.GET("/diplomas/download/:token", app.diplomas.Download)

	// Actor runs again after JWT so audit rows carry the caller id.
	authed := func(roles ...models.UserRole) *gin.RouterGroup {
		return api.Group("", middleware.JWT(app.verifier), middleware.RequireRoles(roles...), middleware.Actor())
	}

	participant := authed(models.RoleParticipant)
	participant.GET("/participants/me", app.participants.Me)

	member := authed(models.RoleMember)
	member.GET("/members/me", app.members.Me)
	member.GET("/members/me/diplomas", app.members.Diplomas)

	admin := authed(models.RoleAdmin, models.RoleSuperAdmin)
	admin.GET("/auth/me", app.auth.Me)

	admin.POST("/nominations/invitations", app.nominations.CreateInvitation)
	admin.GET("/nominations", app.nominations.List)
	admin.GET("/nominations/stats", app.nominations.Stats)
	admin.GET("/nominations/:id", app.nominations.Get)
	admin.PUT("/nominations/:id", app.nominations.Update)
	admin.DELETE("/nominations/:id", app.nominations.Delete)
	admin.POST("/nominations/:id/approve", app.nominations.Approve)
	admin.POST("/nominations/:id/reject", app.nominations.Reject)
	admin.POST("/nominations/:id/approve-registration", app.training.DecideRegistration)

	admin.GET("/training-participants", app.training.List)
	admin.GET("/training-participants/export", app.training.Export)
	admin.GET("/training-participants/:id", app.training.Get)
	admin.PUT("/training-participants/:id/attendance", app.training.RecordAttendance)
	admin.GET("/training-participants/:id/preview-diploma", app.diplomas.Preview)
	admin.POST("/training-participants/:id/generate-diploma", app.diplomas.Generate)
	admin.POST("/training-participants/:id/send-diploma", app.diplomas.Send)
}
