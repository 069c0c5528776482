package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"cbtexam/internal/app"
	"cbtexam/internal/db"
	"cbtexam/internal/events"
	"cbtexam/internal/exam"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := app.LoadConfig()
	ctx := context.Background()

	dbConn, err := db.OpenWithConfig(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN, db.Config{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	storage, err := snapshotStorage(ctx, cfg)
	if err != nil {
		log.Printf("session storage error: %v", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()
	go func() {
		if err := bus.RunAuditLogger(ctx); err != nil {
			log.Printf("audit logger stopped: %v", err)
		}
	}()

	r := app.NewRouter(cfg, dbConn, storage, bus)

	log.Printf("cbtexam web listening on %s", cfg.HTTPAddr)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}

// snapshotStorage picks the session snapshot backend: redis when
// configured, in-process memory otherwise. Memory mode loses sessions
// on restart, which is acceptable for single-node development.
func snapshotStorage(ctx context.Context, cfg app.Config) (exam.SnapshotStorage, error) {
	if cfg.RedisURL == "" {
		log.Printf("REDIS_URL not set, using in-memory session storage")
		return exam.NewMemoryStorage(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return exam.NewRedisStorage(client, 0), nil
}
