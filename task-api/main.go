package main

import (
	"fmt"
	"net/http"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"devcollab/config"
	"devcollab/domain"
	"devcollab/storage"
	"devcollab/task-api/api"
)

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	logger.SetLevel(cfg.LogLevel())
	log.SetLevel(cfg.LogLevel())

	svc, err := storage.NewServiceClient(cfg.ConnectionString)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	tasks := storage.NewTasks(svc, cfg.TasksTable)
	var dir domain.Directory = storage.NewDirectory(svc, cfg.ProjectsTable, cfg.UsersTable)

	redisOpts, err := cfg.Options()
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	if redisOpts != nil {
		rc := redis.NewClient(redisOpts)
		defer rc.Close()
		dir = storage.NewProjectCache(dir, rc, cfg.ProjectCacheTTL)
	}

	var auth *api.Auth
	if cfg.Auth0TestMode {
		auth = api.NewTestAuth([]byte(cfg.TestJWTSecret))
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/")
	}

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.SonicSerializer{}
	e.Use(api.RequestID(), api.AccessLog(logger), middleware.Recover(), api.Decompress())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, domain.NewTaskService(tasks, dir), auth, logger)

	e.Logger.Fatal(e.Start(":" + cfg.Port))
}
