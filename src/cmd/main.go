package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/newnonsick/Nutritional-Information-BE/src/analysis"
	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
	"github.com/newnonsick/Nutritional-Information-BE/src/identity"
	"github.com/newnonsick/Nutritional-Information-BE/src/imaging"
	"github.com/newnonsick/Nutritional-Information-BE/src/meals"
	"github.com/newnonsick/Nutritional-Information-BE/src/pipeline"
	"github.com/newnonsick/Nutritional-Information-BE/src/repository"
	server "github.com/newnonsick/Nutritional-Information-BE/src/server"
	"github.com/newnonsick/Nutritional-Information-BE/src/sweeper"
)

func main() {
	log := logrus.New()
	config, err := cfg.ReadProperties()
	if err != nil {
		log.WithError(err).Fatal("can not read configuration")
	}
	configureLogger(log, config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config, log); err != nil {
		log.WithError(err).Error("service stopped with error")
		stop()
		os.Exit(1)
	}
}

func configureLogger(log *logrus.Logger, config *cfg.Properties) {
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", config.LogLevel).Warn("unknown log level, using info")
	}
	if config.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func run(ctx context.Context, config *cfg.Properties, log *logrus.Logger) error {
	s3Client, err := app.NewMinioS3Client(
		config.S3.Host,
		config.S3.AccessKey,
		config.S3.SecretKey,
		config.S3.Bucket,
		config.S3.UseSSL,
		config.S3.PublicURL,
		log)
	if err != nil {
		return err
	}
	bucketCtx, cancel := context.WithTimeout(ctx, config.S3.ReadTimeout)
	err = s3Client.EnsureBucket(bucketCtx, config.S3.CreateBucket)
	cancel()
	if err != nil {
		return err
	}

	db, err := repository.OpenDatabase(config.DB, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	mealStore := repository.NewGormMealStore(db)

	tokenCache, err := repository.NewTokenCache(ctx, config)
	if err != nil {
		return err
	}
	defer tokenCache.Close()
	provider, err := identity.NewProvider(ctx, config, log)
	if err != nil {
		return err
	}
	identityService := identity.NewService(provider, tokenCache, config.Cache.TTL, log)

	backend, err := analysis.NewBackend(ctx, config.MLServer, s3Client)
	if err != nil {
		return err
	}
	if closer, ok := backend.(io.Closer); ok {
		defer closer.Close()
	}
	analysisClient := analysis.NewClient(backend, config.MLServer.Timeout, config.MLServer.ThinkingBudget, log)

	orchestrator := pipeline.NewOrchestrator(
		imaging.NewValidator(config.Staging.MaxUploadBytes),
		imaging.NewDiskStager(config.Staging.Dir, log),
		analysisClient,
		imaging.NewNormalizer(),
		pipeline.NewPersister(s3Client, mealStore, log),
		pipeline.Limits{MaxWidth: config.Staging.MaxWidth, MaxHeight: config.Staging.MaxHeight},
		log)
	mealService, err := meals.NewService(mealStore, config.Server.DefaultTimezone, log)
	if err != nil {
		return err
	}

	router := server.NewRouter(config, server.Handlers{
		Auth:    server.NewAuthHandler(config.Auth, identityService, log),
		Meals:   server.NewMealsHandler(mealService, log),
		Analyze: server.NewAnalyzeHandler(orchestrator, config.Staging.MaxUploadBytes, log),
		WS:      server.NewWSHandler(orchestrator, config.Staging.MaxUploadBytes, config.Server.CorsOrigins, log),
	}, log)
	orphanSweeper := sweeper.New(s3Client, mealStore, config.Sweeper.Interval, config.Sweeper.Grace, log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.RunServer(groupCtx, config.Server, router, log)
	})
	group.Go(func() error {
		return orphanSweeper.Run(groupCtx)
	})
	log.WithField("name", config.Server.Name).Info("service started")
	return group.Wait()
}
