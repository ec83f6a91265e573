// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"vaspay-service/internal/config"
	"vaspay-service/internal/db"
	"vaspay-service/internal/domain/pricing"
	notifyH "vaspay-service/internal/handlers/notification"
	purchaseHandler "vaspay-service/internal/handlers/purchase"
	recoveryHandler "vaspay-service/internal/handlers/recovery"
	walletHandler "vaspay-service/internal/handlers/wallet"
	webhookHandler "vaspay-service/internal/handlers/webhook"
	wsHandler "vaspay-service/internal/handlers/websocket"
	"vaspay-service/internal/middleware"
	"vaspay-service/internal/pkg/jwt"
	"vaspay-service/internal/pkg/session"
	"vaspay-service/internal/provider"
	"vaspay-service/internal/repository/postgres"
	notifyUsecase "vaspay-service/internal/service/notification"
	purchaseUsecase "vaspay-service/internal/service/purchase"
	recoveryUsecase "vaspay-service/internal/service/recovery"
	walletUsecase "vaspay-service/internal/service/wallet"
	webhookUsecase "vaspay-service/internal/service/webhook"
	"vaspay-service/internal/websocket"
	wsHandlers "vaspay-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.Default()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisCfg := db.RedisConfig{
		ClusterMode: false,
		Addresses:   []string{s.cfg.RedisAddr},
		Password:    s.cfg.RedisPass,
		DB:          0,
		PoolSize:    10,
	}

	redisClient, err := db.NewRedisClient(redisCfg)
	if err != nil {
		log.Fatalf("[REDIS] ❌ Failed to connect to Redis: %v", err)
	}
	log.Println("[REDIS] ✅ Connected successfully")

	// ----- JWT Verifier -----
	// Tokens are minted by the auth service; this service only verifies.
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Session Manager & Rate Limiter -----
	sessionManager := session.NewManager(redisClient)
	rateLimiter := session.NewRateLimiter(redisClient)

	// ----- Repositories -----
	walletRepo := postgres.NewWalletRepository(pool)
	txnRepo := postgres.NewTransactionRepository(pool)
	revenueRepo := postgres.NewRevenueRepository(pool)
	_ = revenueRepo
	recoveryRepo := postgres.NewRecoveryRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	notifyRepo := postgres.NewNotificationRepository(pool)
	ledger := postgres.NewLedgerStore(pool)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, sessionManager)
	hub.RegisterHandler(wsHandlers.NewNotificationHandler(notifyRepo))
	go hub.Run(ctx)

	// ----- Providers -----
	// Ordered: primary first, fallback second. The purchase service walks
	// the slice on vend failure.
	monnify := provider.NewMonnify(provider.MonnifyConfig{
		APIKey:       s.cfg.MonnifyAPIKey,
		SecretKey:    s.cfg.MonnifySecretKey,
		ContractCode: s.cfg.MonnifyContractCode,
		BaseURL:      s.cfg.MonnifyBaseURL,
		Timeout:      s.cfg.ProviderTimeout,
		RequeryDelay: s.cfg.RequeryDelay,
	}, redisClient, logger)
	peyflex := provider.NewPeyflex(provider.PeyflexConfig{
		APIToken: s.cfg.PeyflexAPIToken,
		BaseURL:  s.cfg.PeyflexBaseURL,
		Timeout:  s.cfg.ProviderTimeout,
	}, provider.NewTranslator(nil), logger)
	adapters := []provider.Adapter{monnify, peyflex}

	// ----- Services (Usecases) -----
	notifService := notifyUsecase.NewNotificationService(notifyRepo, hub)

	purchaseService := purchaseUsecase.NewService(
		walletRepo,
		txnRepo,
		ledger,
		recoveryRepo,
		userRepo,
		pricing.NewEngine(),
		adapters,
		notifService,
		hub,
		purchaseUsecase.Config{
			AirtimeMinAmount:         s.cfg.AirtimeMinAmount,
			AirtimeMaxAmount:         s.cfg.AirtimeMaxAmount,
			DuplicateWindow:          s.cfg.DuplicateWindow,
			EmergencyMultiplier:      s.cfg.EmergencyMultiplier,
			EmergencyThresholdFactor: s.cfg.EmergencyThresholdFactor,
			EmergencyRecoveryWindow:  s.cfg.EmergencyRecoveryWindow,
			PlanAmountTolerance:      s.cfg.PlanAmountTolerance,
		},
		logger,
	)

	webhookService := webhookUsecase.NewService(
		txnRepo,
		ledger,
		userRepo,
		notifService,
		hub,
		webhookUsecase.Config{
			Secret:     s.cfg.WebhookSecret,
			DepositFee: s.cfg.DepositFee,
		},
		logger,
	)

	recoveryService := recoveryUsecase.NewService(recoveryRepo, ledger, notifService, hub, logger)
	walletService := walletUsecase.NewService(walletRepo, txnRepo, logger)

	// ----- Background workers -----
	go recoveryService.Run(ctx, s.cfg.RecoveryInterval)

	// ----- Handlers -----
	notifHandler := notifyH.NewNotificationHandler(notifService)
	purchaseHandlerInst := purchaseHandler.NewPurchaseHandler(purchaseService)
	walletHandlerInst := walletHandler.NewWalletHandler(walletService)
	webhookHandlerInst := webhookHandler.NewWebhookHandler(webhookService, logger)
	recoveryHandlerInst := recoveryHandler.NewRecoveryHandler(recoveryService)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier, sessionManager)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		PurchaseHandler: purchaseHandlerInst,
		WalletHandler:   walletHandlerInst,
		WebhookHandler:  webhookHandlerInst,
		RecoveryHandler: recoveryHandlerInst,
		NotifHandler:    notifHandler,
		WSHandler:       wsHandlerInst,
		AuthMiddleware:  authMiddleware,
		RateLimiter:     rateLimiter,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("🚀 Server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
