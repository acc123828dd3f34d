package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/config"
	pkgmdw "github.com/nguyentranbao-ct/field-booking-admin/internal/server/middleware"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger/log"
)

type Handlers struct {
	fx.In

	Authenticator pkgmdw.TokenAuthenticator
	Health        *HealthController
	Auth          *AuthController
	Chat          *ChatController
	Socket        *SocketHandler
}

// NewEcho builds the HTTP server with its middleware chain and routes.
func NewEcho(conf *config.Config, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = pkgmdw.ErrorHandler(logger.MustNamed("http"))

	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logRequestConfig()))
	e.Use(middleware.RecoverWithConfig(recoverConfig()))
	e.Use(pkgmdw.CORS(pkgmdw.CORSPattern(conf.Server.CORSOrigins)))

	e.GET("/health", h.Health.Health)
	if conf.Server.EnablePprof {
		pkgmdw.Pprof(e.Group(""))
	}

	api := e.Group("/api/v1")
	api.POST("/auth/login", pkgmdw.WrapHandler(h.Auth.Login))

	authed := api.Group("", pkgmdw.Auth(h.Authenticator))
	authed.GET("/auth/me", pkgmdw.WrapHandler(h.Auth.Me))

	chat := authed.Group("/chat")
	chat.GET("/ws", h.Socket.Serve)
	chat.GET("/rooms/:customer_id/messages", pkgmdw.WrapHandler(h.Chat.GetMessages))
	chat.POST("/rooms/:customer_id/messages", pkgmdw.WrapHandler(h.Chat.SendMessage))
	chat.POST("/rooms/:customer_id/read", pkgmdw.WrapHandler(h.Chat.MarkAsRead))
	chat.GET("/rooms/:customer_id/customer", pkgmdw.WrapHandler(h.Chat.GetCustomer))
	chat.PUT("/agents/me/status", pkgmdw.WrapAction(h.Chat.UpdateStatus))

	authed.GET("/customers", pkgmdw.WrapHandler(h.Chat.ListCustomers))

	return e
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	e *echo.Echo,
	sockets *SocketHandler,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				addr := conf.Server.Addr()
				log.Infow(ctx, "starting HTTP server", "addr", addr)
				if err := e.Start(addr); !errors.Is(err, http.ErrServerClosed) {
					log.Errorw(ctx, "HTTP server stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, conf.Server.ShutdownTimeout)
			defer cancel()
			if err := e.Shutdown(ctx); err != nil {
				return err
			}
			return sockets.Shutdown(ctx)
		},
	})
}
