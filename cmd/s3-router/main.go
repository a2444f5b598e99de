// Command s3-router is a Lambda function that turns S3 object-created
// notifications into EventBridge events, one per route whose prefixes match
// the object key.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/caarlos0/env/v11"

	"github.com/oxford-data-processes/aws-utils/aws"
	"github.com/oxford-data-processes/aws-utils/config"
	"github.com/oxford-data-processes/aws-utils/events"
	"github.com/oxford-data-processes/aws-utils/router"
)

type routerConfig struct {
	AWS        config.AWS `envPrefix:"AWS_"`
	RoutesPath string     `env:"ROUTES_PATH" envDefault:"routes.yaml"`
	LogLevel   slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

func loadRoutes(path string) ([]router.Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open routes file: %w", err)
	}
	defer f.Close()
	return router.LoadRoutes(f)
}

func run(ctx context.Context) error {
	var cfg routerConfig
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	routes, err := loadRoutes(cfg.RoutesPath)
	if err != nil {
		return err
	}

	awsCfg, err := cfg.AWS.Load(ctx)
	if err != nil {
		return err
	}
	clients := aws.NewClients(awsCfg)

	r, err := router.New(events.NewPublisher(clients.EventBridge, logger), routes, logger)
	if err != nil {
		return err
	}

	logger.Info("router ready", "routes", len(routes))
	lambda.Start(r.Handle)
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("s3-router failed to start", "error", err)
		os.Exit(1)
	}
}
