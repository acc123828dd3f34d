package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/config"
	"github.com/nguyentranbao-ct/field-booking-admin/internal/server"
	"github.com/nguyentranbao-ct/field-booking-admin/pkg/logger"
)

func Invoke(conf *config.Config, funcs ...any) *fx.App {
	if err := logger.SetLevel(conf.Log.Level); err != nil {
		panic(err)
	}
	log := logger.MustNamed("app")
	log.Debugw("config loaded", log.Reflect("config", conf.Redacted()))
	return fx.New(
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(
			newRealtime,
			newEventPublisher,
			newBackendClient,
			newAuthUseCase,
			newChatUseCase,
			asTokenAuthenticator,

			server.NewHealthController,
			server.NewAuthController,
			server.NewChatController,
			server.NewSocketHandler,
			server.NewEcho,
		),
		fx.Supply(conf),
		fx.Invoke(funcs...),
	)
}
