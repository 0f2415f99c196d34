// Package server initializes and runs the BuildVault server: it wires the
// database, content store, ledger emitter and replay guard together, runs
// migrations, and drives the background lease-expiry sweep until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/buildvault/buildvault/internal/logging"
	"github.com/buildvault/buildvault/internal/server/blobstore"
	"github.com/buildvault/buildvault/internal/server/config"
	"github.com/buildvault/buildvault/internal/server/keyring"
	"github.com/buildvault/buildvault/internal/server/ledger"
	"github.com/buildvault/buildvault/internal/server/repositories/repomanager"
	"github.com/buildvault/buildvault/internal/server/services"
	"github.com/buildvault/buildvault/internal/server/ticket"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db          *sql.DB
	repomanager repomanager.RepositoryManager
	natsConn    *nats.Conn
	redis       *redis.Client

	Keyring   *keyring.Keyring
	Sealer    *keyring.Service
	Authority *ticket.Authority
	Uploads   *services.UploadService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	// Random instance id so logs from concurrent server replicas stay apart.
	instance, err := common.MakeRandHexString(4)
	if err != nil {
		return nil, fmt.Errorf("instance id: %w", err)
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil))).With("instance", instance)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("content store: %w", err)
	}

	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	linker := ledger.NewLinker(ledger.NewNatsEmitter(nc, cfg.NatsSubject), logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	guard := ticket.NewRedisReplayGuard(rdb)

	kr := keyring.NewKeyring(db, rm, []byte(cfg.MasterKey))
	sealer := keyring.NewService(kr, store, logger)

	var prevKey []byte
	if cfg.SecretKeyPrev != "" {
		prevKey = []byte(cfg.SecretKeyPrev)
	}
	authority := ticket.NewAuthority(db, rm, guard, logger,
		[]byte(cfg.SecretKey), prevKey, cfg.TicketValidity)

	uploads := services.NewUploadService(db, rm, store, sealer, linker, logger, cfg)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		repomanager: rm,
		natsConn:    nc,
		redis:       rdb,
		Keyring:     kr,
		Sealer:      sealer,
		Authority:   authority,
		Uploads:     uploads,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// runExpirySweep periodically moves overdue active leases to the expired
// state so stale leases cannot linger as issuance targets.
func (app *App) runExpirySweep(ctx context.Context) {
	t := time.NewTicker(app.config.ExpirySweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := app.repomanager.Leases(app.db).ExpireDue(ctx, now)
			if err != nil {
				app.logger.Error(ctx, "lease expiry sweep failed", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired stale leases", "count", n)
			}
		}
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)
	go app.runExpirySweep(ctx)

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")
	app.natsConn.Close()
	if err := app.redis.Close(); err != nil {
		app.logger.Error(ctx, "closing redis", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err.Error())
	}
}
