package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealroom/internal/common"
	"dealroom/internal/dbmysql"
	"dealroom/internal/di"

	"github.com/gorilla/mux"
)

func main() {
	log.Println("Starting Negotiation Service...")

	app, cleanup, err := di.InitializeApplication()
	if err != nil {
		log.Fatalf("Failed to initialize negotiation service: %v", err)
	}
	defer cleanup()

	if err := dbmysql.Migrate(app.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", health).Methods("GET")
	app.Handler.Register(router)

	router.Use(common.LoggingMiddleware(app.Log))
	router.Use(common.AuthMiddleware)

	server := &http.Server{
		Addr:         app.Config.Server.Host + ":" + app.Config.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		app.Log.Info("negotiation service running", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Log.Info("shutting down negotiation service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		app.Log.Error("server shutdown failed", "error", err)
	}

	app.Dispatcher.Shutdown()
	app.Hub.Close()
	if err := app.Mongo.Close(ctx); err != nil {
		app.Log.Error("mongo disconnect failed", "error", err)
	}

	app.Log.Info("negotiation service stopped")
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
