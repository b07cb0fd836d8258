package main

import (
	"github.com/robfig/cron/v3"

	"github.com/linkealabs/linkea/config"
	"github.com/linkealabs/linkea/models"
	"github.com/linkealabs/linkea/routes"
	"github.com/linkealabs/linkea/stats"
	"github.com/linkealabs/linkea/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Landing{},
		&models.Link{},
		&models.LinkClickCounter{},
		&models.LandingViewCounter{},
	)

	clock := stats.SystemClock()
	r := routes.SetupRouter(db, clock)

	// Weekly digest mails, best-effort.
	if cfg.DigestCron != "" {
		sender := stats.NewDigestSender(db, clock, utils.SendMail)
		c := cron.New()
		if _, err := c.AddFunc(cfg.DigestCron, func() {
			sent, skipped, failed := sender.Run()
			utils.Sugar.Infof("weekly digest run finished: sent=%d skipped=%d failed=%d", sent, skipped, failed)
		}); err != nil {
			utils.Sugar.Fatalf("invalid digest cron expression %q: %v", cfg.DigestCron, err)
		}
		c.Start()
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
