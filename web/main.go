package main

import (
	"context"
	"encoding/base64"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/bastelix/sommerfest-quiz-sub007/core"
	"github.com/bastelix/sommerfest-quiz-sub007/infrastructure/communication"
	"github.com/bastelix/sommerfest-quiz-sub007/infrastructure/devops"
	"github.com/bastelix/sommerfest-quiz-sub007/infrastructure/nginx"
	"github.com/bastelix/sommerfest-quiz-sub007/web/handlers"
	"github.com/bastelix/sommerfest-quiz-sub007/web/middlewares"
)

func main() {
	ctx := context.Background()

	cfg, err := devops.LoadAppConfig(ctx)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	registry, err := gorm.Open(mysql.Open(cfg.RegistryDSN), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to open registry: %v", err)
	}
	if err := registry.AutoMigrate(&core.Tenant{}, &core.Setting{}); err != nil {
		log.Fatalf("failed to migrate registry: %v", err)
	}

	dm, err := core.NewDatabaseManager(cfg.TenantPoolDSN, cfg.MaxConnections)
	if err != nil {
		log.Fatalf("failed to open tenant pool: %v", err)
	}
	defer dm.Close()
	dm.Excluded = []string{cfg.RegistryDBName}

	vhosts := nginx.NewManager(cfg.VhostDir, cfg.ReloaderURL, cfg.BaseDomain, cfg.Upstream)

	service := core.NewTenantService(
		registry,
		dm,
		core.NewSQLMigrationRunner(dm),
		vhosts,
		dm,
		cfg.MigrationsDir,
		cfg.TenantsDir,
	)
	if cfg.SyncCooldownMinutes > 0 {
		service.SyncCooldown = time.Duration(cfg.SyncCooldownMinutes) * time.Minute
	}
	if os.Getenv("SLACK_BOT_TOKEN") != "" {
		service.SetNotifier(communication.ConnectSlack())
	}

	secret, err := base64.StdEncoding.DecodeString(cfg.JWTSecret)
	if err != nil {
		log.Fatalf("failed to decode jwt secret: %v", err)
	}

	r := gin.Default()
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	protected := r.Group("/api")
	protected.Use(middlewares.Authentication(secret))
	handlers.Register(protected, service)

	r.Run(cfg.Listen)
}
