package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"FinSight/internal/di"
	"FinSight/pkg/config"
	applogger "FinSight/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "configs/config.yaml", "config file; empty uses defaults and FINSIGHT_* env only")
		checkOnly  = flag.Bool("check", false, "validate the configuration and exit")
	)
	flag.Parse()

	boot, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stderr"})

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		return 2
	}
	if *checkOnly {
		fmt.Fprintf(os.Stdout, "config ok: env=%s backend=%s redis=%t clickhouse=%t kafka=%t\n",
			cfg.Environment, cfg.Forecast.ModelBackend, cfg.Redis.Enabled, cfg.ClickHouse.Enabled, cfg.Kafka.Enabled)
		return 0
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		return 1
	}

	boot.Info("starting",
		applogger.String("env", cfg.Environment),
		applogger.String("model_backend", cfg.Forecast.ModelBackend),
		applogger.Bool("auto_train", cfg.Forecast.AutoTrain),
	)
	if err := app.Run(context.Background()); err != nil {
		boot.Error("app stopped with error", applogger.Error(err))
		return 1
	}
	return 0
}
