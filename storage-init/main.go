package main

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"devcollab/config"
	"devcollab/storage"
)

func main() {
	cfg, err := config.LoadStorageInit()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.SetLevel(cfg.LogLevel())
	log.Info("storage init starting")

	svc, err := storage.NewServiceClient(cfg.ConnectionString)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	if err := createTables(context.Background(), svc, []string{
		cfg.TasksTable,
		cfg.ProjectsTable,
		cfg.UsersTable,
	}); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	log.Info("storage init complete")
}

func createTables(ctx context.Context, svc *aztables.ServiceClient, names []string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		_, err := svc.NewClient(name).CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
			log.WithField("table", name).Debug("table already exists")
			continue
		}
		log.WithField("table", name).Info("table created")
	}
	return nil
}
