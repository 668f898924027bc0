package main

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/rgacutan/bizcrm-api/internal/config"
	"github.com/rgacutan/bizcrm-api/internal/database"
	"github.com/rgacutan/bizcrm-api/internal/handlers"
	"github.com/rgacutan/bizcrm-api/internal/notify"
	"github.com/rgacutan/bizcrm-api/internal/push"
	"github.com/rgacutan/bizcrm-api/internal/realtime"
	"github.com/rgacutan/bizcrm-api/internal/routes"
)

func main() {
	godotenv.Load()
	cfg := config.Load()

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Migrate(); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	hub := realtime.NewHub()
	if cfg.RedisURL != "" {
		bridge, err := realtime.NewBridge(cfg.RedisURL, hub)
		if err != nil {
			log.Fatalf("redis bridge failed: %v", err)
		}
		defer bridge.Close()
	}

	pushSvc := push.NewService(database.DB, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	notifySvc := notify.NewService(database.DB, hub, pushSvc)

	app := fiber.New()
	routes.Setup(app, handlers.New(database.DB, notifySvc, pushSvc), handlers.NewSocket(database.DB, hub, notifySvc))

	log.Printf("listening on :%s", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}
