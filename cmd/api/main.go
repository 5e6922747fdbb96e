package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"schoolfest-backend/internal/client"
	"schoolfest-backend/internal/config"
	"schoolfest-backend/internal/invoice"
	"schoolfest-backend/internal/mailer"
	"schoolfest-backend/internal/repository"
	"schoolfest-backend/internal/server"
	"schoolfest-backend/internal/service"
	"schoolfest-backend/internal/storage"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg := &config.Config{}
	if err := env.Parse(cfg); err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	db := client.InitPostgresClient(cfg.DatabaseURL)

	store, err := storage.New(&cfg.Storage)
	if err != nil {
		log.Fatal("init storage: ", err)
	}

	var mail mailer.Mailer
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTPMailer(&cfg.SMTP)
	} else {
		mail = mailer.NewNoopMailer()
	}

	// Only gateways with credentials get registered; initiating against
	// anything else is a validation error.
	registry := client.NewRegistry()
	if cfg.Stripe.SecretKey != "" {
		registry.Register(client.NewStripeGateway(&cfg.Stripe))
		log.Println("payment gateway enabled: stripe")
	}
	if cfg.Midtrans.ServerKey != "" {
		registry.Register(client.NewMidtransGateway(&cfg.Midtrans))
		log.Println("payment gateway enabled: midtrans")
	}
	if cfg.Braintree.MerchantID != "" {
		registry.Register(client.NewBraintreeGateway(&cfg.Braintree))
		log.Println("payment gateway enabled: braintree")
	}

	txRunner := repository.NewTxRunner(db, cfg.Database.TxDisabled)
	schoolRepo := repository.NewSchoolRepository(db)
	eventRepo := repository.NewEventRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)

	events := service.NewDispatcher()

	settlementService := service.NewSettlementService(
		txRunner,
		paymentRepo,
		batchRepo,
		registrationRepo,
		events,
	)
	webhookService := service.NewWebhookService(registry, webhookEventRepo, settlementService)
	schoolService := service.NewSchoolService(schoolRepo, &cfg.Auth)
	eventService := service.NewEventService(eventRepo)
	batchService := service.NewBatchService(txRunner, batchRepo, registrationRepo, eventRepo)
	paymentService := service.NewPaymentService(
		txRunner,
		batchRepo,
		paymentRepo,
		schoolRepo,
		eventRepo,
		registry,
		store,
		settlementService,
		events,
	)
	invoiceService := service.NewInvoiceService(
		txRunner,
		batchRepo,
		schoolRepo,
		eventRepo,
		paymentRepo,
		invoice.NewPDFRenderer(),
		store,
		&cfg.Invoice,
	)
	notifier := service.NewNotifier(batchRepo, schoolRepo, paymentRepo, mail)

	events.Subscribe(notifier.HandleOutcome)
	events.Subscribe(invoiceService.HandleOutcome)
	events.Start(2)

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	if err := service.StartWebhookReaper(reaperCtx, webhookEventRepo, cfg.Webhook.ReapInterval, cfg.Webhook.Retention); err != nil {
		log.Fatal("start webhook reaper: ", err)
	}

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port

	srv := server.NewServer(
		cfg,
		schoolService,
		eventService,
		batchService,
		paymentService,
		settlementService,
		invoiceService,
		webhookService,
	)

	log.Println("Starting HTTP server on", serverAddr)
	go func() {
		if err := srv.Start(serverAddr); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	<-sigChan
	log.Println("Signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Println("HTTP server shutdown error:", err)
	}

	// Drain queued side effects (emails, invoices) before exit.
	events.Stop()
	reaperCancel()
}
