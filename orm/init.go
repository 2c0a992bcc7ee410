package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xrey167/molthub/config"
)

// DB wraps the gorm handle. All registry metadata access goes through
// its methods.
type DB struct {
	gormDB *gorm.DB
}

func InitDB(cfg *config.AppConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Username,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)

	dsnRedacted := strings.ReplaceAll(dsn, cfg.Database.Password, "*****")
	log.Debug().
		Msgf("Connecting to postgres using the following information: %s", dsnRedacted)

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	log.Debug().Msg("Successfully connected to the database")

	// The vector column type requires the pgvector extension.
	if err := gormDB.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}

	// Run database migrations
	err = gormDB.AutoMigrate(
		&User{},
		&APIToken{},
		&Skill{},
		&SkillTag{},
		&SkillVersion{},
		&VersionFingerprint{},
		&SkillEmbedding{},
		&Star{},
		&Comment{},
		&SkillBadge{},
		&AuditLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DB{gormDB: gormDB}, nil
}

// InTx runs fn inside a single database transaction. The callback
// receives a transactional store; any error rolls the whole unit back.
func (db *DB) InTx(ctx context.Context, fn func(tx Store) error) error {
	return db.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&DB{gormDB: tx})
	})
}
