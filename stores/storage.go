package stores

import (
	"cardstudio/config"
	"cardstudio/core"
	"cardstudio/stores/aws"
	"cardstudio/stores/filesystem"
	"cardstudio/stores/memory"
	"cardstudio/stores/postgres"
	"cardstudio/stores/sqlite"
	"context"

	"github.com/sirupsen/logrus"
)

// Store is a union interface that includes all store types.
type Store interface {
	core.DesignStore
	core.InvitationStore
	core.OrganizationStore
}

func GetStore(ctx context.Context, cfg config.Storage) Store {
	var store Store

	storageField := logrus.Fields{
		"storageType": cfg.Type,
	}

	switch cfg.Type {
	case "filesystem":
		storageField["basePath"] = cfg.LocalPath
		store = filesystem.NewStore(cfg.LocalPath)
	case "sqlite":
		storageField["dataSourceName"] = cfg.DataSourceName
		store = sqlite.NewStore(cfg.DataSourceName)
	case "s3":
		if cfg.BucketName == "" {
			logrus.Fatal("S3_BUCKET_NAME environment variable must be set for s3 storage type")
		}
		storageField["bucketName"] = cfg.BucketName
		store = aws.NewStore(cfg.BucketName)
	case "postgres":
		if cfg.DatabaseURL == "" {
			logrus.Fatal("DATABASE_URL environment variable must be set for postgres storage type")
		}
		pg, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logrus.WithError(err).Fatal("Failed to connect to postgres")
		}
		store = pg
	default:
		store = memory.NewStore()
		storageField["storageType"] = "in-memory"
	}
	logrus.WithFields(storageField).Info("Use storage")
	return store
}
