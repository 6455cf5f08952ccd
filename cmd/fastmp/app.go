package main

import (
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"

	"github.com/fightinglucida/FastMP/pkg/config"
	"github.com/fightinglucida/FastMP/pkg/credentials"
	"github.com/fightinglucida/FastMP/pkg/logger"
	"github.com/fightinglucida/FastMP/pkg/login"
	"github.com/fightinglucida/FastMP/pkg/secrets"
	"github.com/fightinglucida/FastMP/pkg/store"
	"github.com/fightinglucida/FastMP/pkg/syncer"
)

// app holds the wired application graph shared by all commands.
type app struct {
	cfg       *config.Config
	db        *sqlx.DB
	manager   *credentials.Manager
	scheduler *credentials.Scheduler
	content   *store.ContentStore
	machine   *login.Machine
	syncer    *syncer.Syncer
	logger    logger.Logger
}

// newApp loads configuration, initializes logging, opens the database,
// and wires every component. Callers must Close it.
func newApp() (*app, error) {
	cfg, err := config.Load(configFile, globalFlags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo, err := credentials.NewRepository(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare credential storage: %w", err)
	}

	content, err := store.NewContentStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare content storage: %w", err)
	}

	secretsPath := cfg.Storage.SecretsFile
	if secretsPath == "" {
		secretsPath = filepath.Join(filepath.Dir(cfg.Storage.DatabasePath), "fastmp.secrets")
	}
	sec, err := secrets.NewManager(secretsPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize secret storage: %w", err)
	}

	manager := credentials.NewManager(repo, sec, log)
	scheduler := credentials.NewScheduler(repo, cfg.Quota.HourlyRequestLimit, log)
	machine := login.NewMachine(login.NewMemoryStore(cfg.Login.SessionTTL), manager, cfg, log)
	sync := syncer.New(content, scheduler, cfg, log)

	return &app{
		cfg:       cfg,
		db:        db,
		manager:   manager,
		scheduler: scheduler,
		content:   content,
		machine:   machine,
		syncer:    sync,
		logger:    log,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
