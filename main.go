package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"txt-worker/config"
	"txt-worker/repositories"
	"txt-worker/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	broker, err := repositories.DialAMQP(cfg.AMQPURL, cfg.PrefetchCount)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", cfg.AMQPURL, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := repositories.NewPDFEngine(
		repositories.NewTesseractOCR(cfg.TesseractPath, cfg.OCRLanguage),
		repositories.WithDPI(cfg.OCRDPI),
		repositories.WithConcurrency(cfg.OCRConcurrency),
	)

	opts := []services.ExecutorOption{
		services.WithEngine(engine),
		services.WithPageStore(repositories.NewFileSystem()),
		services.WithMode(cfg.Mode),
	}
	collaborators, closers := optionalCollaborators(ctx, cfg)
	opts = append(opts, collaborators...)

	dispatcher := services.NewDispatcher(
		services.WithJobRunner(services.NewJobExecutor(opts...)),
		services.WithAckPolicy(cfg.AckPolicy),
	)

	log.Printf("txt worker started (mode: %s, ack policy: %s, OCR concurrency: %d)", cfg.Mode, cfg.AckPolicy, cfg.OCRConcurrency)

	if err := broker.Setup(); err != nil {
		log.Printf("Failed to set up broker topology: %v", err)
		log.Println("No messages will be consumed. Waiting for a signal to exit")
		<-ctx.Done()
	} else {
		log.Printf(" [*] Waiting for messages in %s. To exit press CTRL+C", broker.Queue())
		err := broker.Consume(ctx, func(ctx context.Context, body []byte, handle *repositories.AMQPDelivery) {
			dispatcher.HandleDelivery(ctx, body, handle)
		})
		if err != nil {
			log.Printf("Consumer stopped: %v", err)
		}
	}

	log.Println("Shutting down, waiting for running jobs to finish")
	dispatcher.Wait()

	for _, c := range closers {
		c()
	}
	_ = broker.Close()
	log.Println("txt worker stopped")
}

// optionalCollaborators wires each store whose environment variable is set.
func optionalCollaborators(ctx context.Context, cfg *config.Config) ([]services.ExecutorOption, []func()) {
	var opts []services.ExecutorOption
	var closers []func()

	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect to db: %v", err)
		}
		ledger := repositories.NewLedgerRepository(db)
		if err := ledger.Migrate(); err != nil {
			log.Fatalf("failed to migrate db: %v", err)
		}
		opts = append(opts, services.WithJobLedger(ledger))
		closers = append(closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		log.Println("Job ledger enabled (Postgres)")
	}

	if cfg.RedisHost != "" {
		tracker := repositories.NewRedisProgressTracker(cfg.RedisHost, cfg.RedisPort)
		opts = append(opts, services.WithProgressTracker(tracker))
		closers = append(closers, func() { _ = tracker.Close() })
		log.Printf("Progress tracking enabled (Redis %s:%s)", cfg.RedisHost, cfg.RedisPort)
	}

	if cfg.DynamoDBTable == "" && cfg.OutputBucket == "" && cfg.NotifyQueueURL == "" {
		return opts, closers
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	if cfg.DynamoDBTable != "" {
		statusRepo := repositories.NewDynamoDBClient(dynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable)
		opts = append(opts, services.WithJobStatusRepository(statusRepo))
		log.Printf("Job status enabled (DynamoDB table %s)", cfg.DynamoDBTable)
	}
	if cfg.OutputBucket != "" {
		opts = append(opts, services.WithPageMirror(repositories.NewS3Repository(awsCfg, cfg.OutputBucket)))
		log.Printf("Page mirror enabled (s3://%s)", cfg.OutputBucket)
	}
	if cfg.NotifyQueueURL != "" {
		notifier := repositories.NewSQSNotifier(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL)
		opts = append(opts, services.WithNotifier(notifier))
		log.Printf("Completion notifications enabled (%s)", cfg.NotifyQueueURL)
	}

	return opts, closers
}
