// README: Entry point; loads config, wires stores and services, starts the HTTP
// server and the timeout reaper.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lastmile/internal/config"
	httptransport "lastmile/internal/http"
	"lastmile/internal/infra"
	"lastmile/internal/modules/delivery"
	"lastmile/internal/modules/notify"
	"lastmile/internal/modules/order"
	"lastmile/internal/modules/rider"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	notifyStore := notify.NewStore(dbPool)
	notifySvc := notify.NewService(redisClient, notifyStore, notify.NewLogMailer())

	riderStore := rider.NewStore(dbPool)
	riderSvc := rider.NewService(riderStore, notifySvc)

	orderStore := order.NewStore(dbPool)

	deliveryStore := delivery.NewStore(dbPool)
	dispatchSvc := delivery.NewService(deliveryStore, orderStore, riderSvc, notifySvc, cfg.Dispatch)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch:  dispatchSvc,
		Riders:    riderSvc,
		Notify:    notifySvc,
		JWTSecret: cfg.Auth.JWTSecret,
	})

	go dispatchSvc.RunReaper(ctx)

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
