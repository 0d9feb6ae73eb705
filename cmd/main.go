package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"settlement-service/internal/assessment"
	"settlement-service/internal/chain"
	"settlement-service/internal/config"
	"settlement-service/internal/contracts"
	"settlement-service/internal/database/postgres"
	"settlement-service/internal/database/redis"
	"settlement-service/internal/event"
	"settlement-service/internal/handlers"
	"settlement-service/internal/oracle"
	"settlement-service/internal/repository"
	"settlement-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("Recovered from panic: %v\n", r)
		}
	}()

	logDir := filepath.Join("/agrisa", "log", "settlement_service")
	fmt.Println("Log directory:", logDir)
	err := os.MkdirAll(logDir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	currentTime := time.Now()
	logFileName := fmt.Sprintf("log_%s.log", currentTime.Format("2006-01-02"))
	logFile := filepath.Join(logDir, logFileName)

	file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	log.SetOutput(file)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		log.Printf("error connect to database: %s", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	// Optional collaborators stay nil interfaces when their backend is down.
	var runLease assessment.RunLease
	cache, err := redis.NewRedisClient(cfg.RedisCfg.Host, cfg.RedisCfg.Port, cfg.RedisCfg.Password, cfg.RedisCfg.DB)
	if err != nil {
		log.Printf("error connect to redis, continuing without run lease: %s", err)
		cache = nil
	} else {
		runLease = cache
	}

	var publisher assessment.EventPublisher
	rabbitConn, err := event.ConnectRabbitMQ(cfg.RabbitMQCfg)
	if err != nil {
		log.Printf("error connect to rabbitmq, continuing without event publishing: %s", err)
	} else {
		defer rabbitConn.Close()
		publisher = event.NewSettlementPublisher(rabbitConn)
	}

	// Transaction orchestration layer
	rpc := chain.NewRPCClient(cfg.ChainCfg.RPCURL)
	sequencer := chain.NewSequencer(rpc)
	custodyWallet := chain.NewCustodyWallet(cfg.ChainCfg.CustodyAPIBaseURL, cfg.ChainCfg.CustodyAPIKey, cfg.ChainCfg.ChainID, rpc)
	platformWallet := chain.NewPlatformWallet(rpc, cfg.ChainCfg.ChainID, cfg.ChainCfg.GasLimit)
	engine := chain.NewEngine(
		sequencer,
		chain.NewDispatchers(custodyWallet, platformWallet),
		cfg.ChainCfg.Confirmations,
		cfg.ChainCfg.ConfirmTimeout,
	)

	platformIdentity := chain.SigningIdentity{Address: cfg.ChainCfg.PlatformAddress, Kind: chain.IdentityPlatform}
	custodyIdentity := chain.SigningIdentity{Address: cfg.ChainCfg.CustodyAddress, Kind: chain.IdentityCustody}

	poolGateway := contracts.NewPoolGateway(engine, cfg.ChainCfg.PoolFactoryAddress, cfg.ChainCfg.CapitalTokenAddress, cfg.ChainCfg.GasLimit)
	settlementGateway := contracts.NewSettlementGateway(engine, cfg.ChainCfg.SettlementAddress, cfg.ChainCfg.GasLimit)

	// Consensus network clients
	requesters := make([]oracle.Requester, 0, len(cfg.OracleCfg.RequesterURLs))
	for _, url := range cfg.OracleCfg.RequesterURLs {
		requesters = append(requesters, oracle.NewHTTPRequester(
			url,
			cfg.OracleCfg.RequesterAPIKey,
			cfg.OracleCfg.VegetationSecret,
			cfg.OracleCfg.VegetationTokenTTL,
		))
	}
	consensus := oracle.NewConsensus(requesters, cfg.OracleCfg.Quorum, cfg.OracleCfg.VegetationLookback)
	attestor := oracle.NewAttestationClient(cfg.OracleCfg.AttestationURL, cfg.OracleCfg.RequesterAPIKey)
	policyClient := oracle.NewPolicyServiceClient(cfg.OracleCfg.PolicyServiceURL, cfg.OracleCfg.PolicyServiceKey)

	reportRepo := repository.NewReportRepository(db)
	runRepo := repository.NewRunRepository(db)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var managerWg sync.WaitGroup
	fetchPool := worker.NewWorkingPool(cfg.PipelineCfg.FetchWorkers, cfg.PipelineCfg.FetchWorkers*4)
	managerWg.Add(1)
	go fetchPool.Start(rootCtx, &managerWg)

	reporter := assessment.NewReporter(
		cfg.PipelineCfg,
		consensus,
		attestor,
		settlementGateway,
		policyClient,
		publisher,
		reportRepo,
		runRepo,
		runLease,
		fetchPool,
		platformIdentity,
	)

	triggerPool := worker.NewWorkingPool(1, 1)
	managerWg.Add(1)
	go triggerPool.Start(rootCtx, &managerWg)

	scheduler := worker.NewJobScheduler("assessment-cycle", cfg.PipelineCfg.RunInterval, triggerPool)
	scheduler.AddJob(reporter.RunJob())
	go scheduler.Run(rootCtx)

	app := fiber.New()
	app.Get("/checkhealth", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).SendString("Settlement service is healthy")
	})

	poolHandler := handlers.NewPoolHandler(poolGateway, platformIdentity, custodyIdentity)
	poolHandler.Register(app)

	runHandler := handlers.NewRunHandler(reporter, runRepo, reportRepo, engine, platformIdentity)
	runHandler.Register(app)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := app.Listen(fmt.Sprintf("0.0.0.0:%s", cfg.Port)); err != nil {
			log.Fatalf("Error starting server: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutting down server...")
	cancel()
	managerWg.Wait()

	if cache != nil {
		cache.Close()
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
}
