package di

import (
	"log/slog"
	"os"

	"dealroom/internal/common"
	"dealroom/internal/config"
	"dealroom/internal/dbmongo"
	"dealroom/internal/message"
	"dealroom/internal/negotiation"
	"dealroom/internal/notif"
	"dealroom/internal/realtime"

	"gorm.io/gorm"
)

// Application bundles everything main needs to run and shut down.
type Application struct {
	Config     *config.Config
	DB         *gorm.DB
	Mongo      *dbmongo.MongoClient
	Hub        *realtime.Hub
	Dispatcher *notif.Dispatcher
	Handler    *negotiation.Handler
	Log        *slog.Logger
}

func ProvideLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func ProvideEmailService(cfg *config.Config, log *slog.Logger) common.EmailService {
	if !cfg.Email.Enabled {
		return notif.NewLogEmailService(log)
	}
	return notif.NewSMTPEmailService(cfg)
}

// ProvideNegotiationFinder exposes the negotiation repository to the
// message sub-engine under its narrower interface.
func ProvideNegotiationFinder(repo negotiation.Repository) message.NegotiationFinder {
	return repo
}
