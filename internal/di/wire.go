//go:build wireinject
// +build wireinject

package di

import (
	"dealroom/internal/common"
	"dealroom/internal/config"
	"dealroom/internal/dbmongo"
	"dealroom/internal/dbmysql"
	"dealroom/internal/message"
	"dealroom/internal/negotiation"
	"dealroom/internal/notif"
	"dealroom/internal/realtime"

	"github.com/google/wire"
)

// InitializeApplication builds the whole engine; wire generates the
// real body.
func InitializeApplication() (*Application, func(), error) {
	wire.Build(
		config.Load,
		ProvideLogger,
		dbmysql.NewMySQL,
		dbmongo.NewMongoConnection,
		dbmongo.NewDirectory,
		wire.Bind(new(common.Directory), new(*dbmongo.Directory)),
		realtime.NewHub,
		wire.Bind(new(common.Hub), new(*realtime.Hub)),
		ProvideEmailService,
		notif.NewDispatcher,
		wire.Bind(new(common.Notifier), new(*notif.Dispatcher)),
		negotiation.NewRepository,
		ProvideNegotiationFinder,
		message.NewRepository,
		message.NewService,
		negotiation.NewService,
		negotiation.NewHandler,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil, nil
}
