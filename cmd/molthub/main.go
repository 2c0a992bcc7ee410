// Command molthub runs the skill registry server.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/blob"
	"github.com/xrey167/molthub/blob/fsblob"
	"github.com/xrey167/molthub/blob/s3blob"
	"github.com/xrey167/molthub/changelog"
	"github.com/xrey167/molthub/config"
	"github.com/xrey167/molthub/embeddings"
	"github.com/xrey167/molthub/httpd"
	"github.com/xrey167/molthub/notify"
	"github.com/xrey167/molthub/orm"
	"github.com/xrey167/molthub/registry"
	"github.com/xrey167/molthub/search"
)

func main() {
	cfg, err := config.Load("molthub")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogging(cfg)

	db, err := orm.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}

	blobs := initializeBlobStore(cfg)

	embedder, err := embeddings.New(cfg.Embeddings)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize embeddings provider")
	}

	var opts []registry.Option
	if cfg.Notify.PublishWebhookURL != "" {
		opts = append(opts, registry.WithNotifier(notify.NewWebhook(cfg.Notify.PublishWebhookURL)))
	}

	svc := registry.NewService(db, blobs, embedder, changelog.DeltaSummarizer{}, opts...)
	engine := search.NewEngine(db, embedder)

	server := httpd.NewServer(svc, engine, cfg.ProductionEnvironment)
	if err := server.Run(cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func initLogging(cfg *config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.ProductionEnvironment {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func initializeBlobStore(cfg *config.AppConfig) blob.Store {
	switch cfg.Persistence.Type {
	case "filesystem":
		return initFilesystemStore(cfg)
	case "s3":
		return initS3Store(cfg)
	default:
		log.Warn().Msgf("unknown persistence type '%s', defaulting to filesystem", cfg.Persistence.Type)

		return initFilesystemStore(cfg)
	}
}

func initFilesystemStore(cfg *config.AppConfig) blob.Store {
	fsStore, err := fsblob.New(cfg.Persistence.StorageDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize filesystem blob store")
	}
	log.Info().
		Str("storage_dir", cfg.Persistence.StorageDir).
		Msg("filesystem blob store initialized")

	return fsStore
}

func initS3Store(cfg *config.AppConfig) blob.Store {
	s3Store, err := s3blob.New(cfg.Persistence.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize s3 blob store")
	}
	log.Info().Msg("s3 blob store initialized")

	return s3Store
}
