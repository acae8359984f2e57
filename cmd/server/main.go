package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/deposit-ledger/posting-engine/internal/config"
	"github.com/deposit-ledger/posting-engine/internal/db"
	"github.com/deposit-ledger/posting-engine/internal/domain"
	"github.com/deposit-ledger/posting-engine/internal/httpapi"
	"github.com/deposit-ledger/posting-engine/internal/messaging"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to create database pool: %v", err)
	}
	defer pool.Close()
	log.Println("database connection pool initialized")

	// Create repositories and domain service
	accountRepo := db.NewAccountRepository(pool.Pool)
	balanceRepo := db.NewBalanceRepository(pool.Pool)
	reservationRepo := db.NewReservationRepository(pool.Pool)
	ledgerRepo := db.NewLedgerRepository(pool.Pool)
	txManager := db.NewTransactionManager(pool.Pool)

	engine := domain.NewEngine(cfg.OverdraftMaxDepth)
	postingService := domain.NewPostingService(accountRepo, balanceRepo, reservationRepo, ledgerRepo, txManager, engine)
	log.Println("posting service initialized")

	// Start the posting request consumer
	consumer, err := messaging.NewConsumer(cfg.RabbitMQ, postingService)
	if err != nil {
		log.Fatalf("failed to create posting consumer: %v", err)
	}
	defer consumer.Close()

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Fatalf("posting consumer failed: %v", err)
		}
	}()

	// Start the operational HTTP server
	handler := httpapi.NewHandler(postingService)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.Router(),
	}

	go func() {
		log.Printf("HTTP server starting on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancel()
	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("stopped")
}
