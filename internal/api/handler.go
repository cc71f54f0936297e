// Package api serves the daemon's HTTP/JSON interface.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/matheus3301/wpplus/internal/dispatch"
	"github.com/matheus3301/wpplus/internal/mirror"
	"github.com/matheus3301/wpplus/internal/scheduler"
	"github.com/matheus3301/wpplus/internal/status"
	"github.com/matheus3301/wpplus/internal/store"
	"go.uber.org/zap"
)

// Session is the part of the session manager the API drives.
type Session interface {
	EnsureStarted(ctx context.Context) error
	State() status.State
	Logout(ctx context.Context) error
}

// Sender sends one message.
type Sender interface {
	Send(ctx context.Context, destination, content string) dispatch.Result
}

// Deps are the collaborators of Handler.
type Deps struct {
	SessionName string
	Session     Session
	Sender      Sender
	Scheduler   *scheduler.Scheduler
	DB          *store.DB
	Mirror      *mirror.Engine
	Contacts    mirror.ContactSource
	MediaDir    string
	Logger      *zap.Logger
}

// Handler implements every route.
type Handler struct {
	sessionName string
	startedAt   time.Time
	session     Session
	sender      Sender
	sched       *scheduler.Scheduler
	db          *store.DB
	mirror      *mirror.Engine
	contacts    mirror.ContactSource
	mediaDir    string
	logger      *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		sessionName: d.SessionName,
		startedAt:   time.Now(),
		session:     d.Session,
		sender:      d.Sender,
		sched:       d.Scheduler,
		db:          d.DB,
		mirror:      d.Mirror,
		contacts:    d.Contacts,
		mediaDir:    d.MediaDir,
		logger:      d.Logger,
	}
}

// Register mounts the routes on e.
func (h *Handler) Register(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.health)

	g.GET("/whatsapp/status", h.whatsAppStatus)
	g.POST("/whatsapp/connect", h.whatsAppConnect)
	g.POST("/whatsapp/logout", h.whatsAppLogout)

	g.POST("/send", h.send)

	g.GET("/scheduled", h.listScheduled)
	g.POST("/scheduled", h.createScheduled)
	g.POST("/scheduled/run", h.runScheduler)
	g.PATCH("/scheduled/:id", h.updateScheduled)
	g.DELETE("/scheduled/:id", h.deleteScheduled)

	g.GET("/contacts", h.listContacts)
	g.POST("/contacts", h.createContact)
	g.POST("/contacts/sync", h.syncContacts)

	g.GET("/chats", h.listChats)
	g.GET("/chats/:id/messages", h.listMessages)

	g.GET("/quick-replies", h.listQuickReplies)
	g.POST("/quick-replies", h.createQuickReply)
	g.DELETE("/quick-replies/:id", h.deleteQuickReply)

	e.GET("/media/:filename", h.media)
}

// NewEcho builds the server with CORS for the browser front-end, panic
// recovery and zap request logging.
func NewEcho(h *Handler, corsOrigin string, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))
	if corsOrigin != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{corsOrigin},
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		}))
	}

	h.Register(e)
	return e
}

func (h *Handler) health(c echo.Context) error {
	return ok(c, map[string]string{"status": "ok"})
}
