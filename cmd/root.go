package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	coreconfig "github.com/zentria/wagate/core/config"
	coreDB "github.com/zentria/wagate/core/database"
	"github.com/zentria/wagate/gateway/authstate"
	"github.com/zentria/wagate/gateway/chatsync"
	domainMessage "github.com/zentria/wagate/gateway/domain/message"
	domainSession "github.com/zentria/wagate/gateway/domain/session"
	domainWebhook "github.com/zentria/wagate/gateway/domain/webhook"
	"github.com/zentria/wagate/gateway/credstore"
	"github.com/zentria/wagate/gateway/instance"
	"github.com/zentria/wagate/gateway/monitor"
	"github.com/zentria/wagate/gateway/notifier"
	"github.com/zentria/wagate/gateway/provider"
	"github.com/zentria/wagate/gateway/reconcile"
	"github.com/zentria/wagate/gateway/registry"
	"github.com/zentria/wagate/gateway/repository"
	"github.com/zentria/wagate/infrastructure/valkey"
	"github.com/zentria/wagate/pkg/crypto"
	"github.com/zentria/wagate/pkg/msgworker"
	"github.com/zentria/wagate/pkg/utils"
	uiWebsocket "github.com/zentria/wagate/ui/websocket"
	"github.com/zentria/wagate/usecase"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverID string

	// Infrastructure
	vkClient     *valkey.Client
	sessionRepo  *repository.SessionGormRepository
	chatRepo     *repository.ChatGormRepository
	wsRepo       *repository.WorkspaceGormRepository
	clientReg    *registry.Registry
	credStore    credstore.Store
	authManager  *authstate.Manager
	instClient   *instance.Client
	eventsOut    *notifier.Notifier
	ingestPool   *msgworker.IngestWorkerPool
	restartAudit *monitor.RestartAudit

	// Usecase
	sendUsecase    domainMessage.ISendUsecase
	sessionUsecase domainSession.IUsecase
	webhookUsecase domainWebhook.IWebhookUsecase
	syncUsecase    usecase.IChatSyncUsecase

	// Background jobs
	healthMonitor *monitor.Monitor
	reconciler    *reconcile.Reconciler
	jobsCancel    context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "wagate",
	Short: "Multi-tenant WhatsApp messaging gateway",
	Long: `wagate routes outbound messages through Cloud API or browser automation
sessions per workspace, with failover, credential backup and chat sync.`,
}

func init() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on environment")
	}

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	viper.AutomaticEnv()

	cobra.OnInitialize(initApp)
}

func initApp() {
	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := os.MkdirAll(cfg.Paths.Storages, 0o755); err != nil {
		logrus.Fatalf("Failed to create storage directory: %v", err)
	}

	if err := crypto.SetEncryptionKey(cfg.Security.SecretKey); err != nil {
		logrus.Fatalf("Invalid encryption key: %v", err)
	}
	serverID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)

	// Relational store
	if _, err := coreDB.NewDatabase(cfg); err != nil {
		logrus.Fatalf("Database connection failed: %v", err)
	}

	sessionRepo = repository.NewSessionGormRepository(coreDB.GlobalDB)
	chatRepo = repository.NewChatGormRepository(coreDB.GlobalDB)
	wsRepo = repository.NewWorkspaceGormRepository(coreDB.GlobalDB)
	ctx := context.Background()
	for name, initFn := range map[string]func(context.Context) error{
		"sessions":   sessionRepo.Init,
		"chats":      chatRepo.Init,
		"workspaces": wsRepo.Init,
	} {
		if err := initFn(ctx); err != nil {
			logrus.Fatalf("Failed to migrate %s schema: %v", name, err)
		}
	}

	// Valkey is optional; everything degrades to file/DB when absent.
	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.WithError(err).Warn("[INIT] Valkey unavailable, continuing in file-only mode")
			vkClient = nil
		}
	}

	fileBackup, err := credstore.NewFileBackup(cfg.Credential.BackupDir)
	if err != nil {
		logrus.Fatalf("Failed to initialize credential backup directory: %v", err)
	}
	credStore = credstore.NewValkeyStore(vkClient, fileBackup, cfg.Credential.TTL)
	authManager = authstate.NewManager(cfg.Paths.Storages, credStore, cfg.Credential.BackupInterval)

	clientReg = registry.New()
	instClient = instance.NewClient(cfg.Security.WorkerAPIToken, cfg.Security.HMACSecret, cfg.Instances.HealthTimeout)
	eventsOut = notifier.New(cfg.Notifier.URLs, cfg.Security.HMACSecret, &http.Client{Timeout: cfg.Notifier.Timeout})

	ingestPool = msgworker.NewIngestWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)

	restartAudit, err = monitor.NewRestartAudit(cfg.Paths.Storages)
	if err != nil {
		logrus.WithError(err).Error("[INIT] Restart audit storage unavailable")
	}

	// Selection and usecases
	factory := provider.NewAdapterFactory(wsRepo, cfg)
	selector := provider.NewSelector(sessionRepo, factory)

	sendUsecase = usecase.NewSendService(selector, sessionRepo)
	sessionUsecase = usecase.NewSessionService(sessionRepo, authManager, instClient, cfg.Instances.URLs, clientReg)
	webhookUsecase = usecase.NewWebhookService(sessionRepo, chatRepo, clientReg, authManager, instClient, ingestPool, eventsOut, uiWebsocket.HubBroadcaster{})

	syncHandler := chatsync.NewHandler(clientReg, usecase.NewChatBatchDeliverer(chatRepo, eventsOut))
	syncUsecase = usecase.NewChatSyncService(syncHandler, sessionRepo, ingestPool, chatsync.Options{
		BatchSize:     cfg.Sync.BatchSize,
		Concurrency:   cfg.Sync.Concurrency,
		WindowDays:    cfg.Sync.WindowDays,
		MaxChats:      cfg.Sync.MaxChats,
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryBase:     cfg.Sync.RetryBase,
	})

	healthMonitor = monitor.New(sessionRepo, clientReg, sessionUsecase, restartAudit, eventsOut, monitor.Options{
		Interval:            cfg.Monitor.Interval,
		InactivityThreshold: cfg.Monitor.InactivityThreshold,
		MaxRestartAttempts:  cfg.Monitor.MaxRestartAttempts,
		Cooldown:            cfg.Monitor.Cooldown,
		SettleDelay:         cfg.Monitor.SettleDelay,
	})
	reconciler = reconcile.New(sessionRepo, instClient, vkClient, reconcile.Options{
		Interval:     cfg.Reconcile.Interval,
		InstanceURLs: cfg.Instances.URLs,
	})

	logrus.WithField("server_id", serverID).Info("[INIT] Gateway components ready")
}

// StartBackgroundJobs launches the worker pool and the periodic jobs.
func StartBackgroundJobs() {
	var ctx context.Context
	ctx, jobsCancel = context.WithCancel(context.Background())

	ingestPool.Start(ctx)
	go healthMonitor.Run(ctx)
	go reconciler.Run(ctx)
}

// StopApp tears down background jobs and shared infrastructure.
func StopApp() {
	if jobsCancel != nil {
		jobsCancel()
	}
	if ingestPool != nil {
		ingestPool.Stop()
	}
	if restartAudit != nil {
		_ = restartAudit.Close()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db, err := coreDB.GetLegacyDB(); err == nil {
		_ = db.Close()
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
