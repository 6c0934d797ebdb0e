package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/storefront-cart/internal/config"
	"github.com/example/storefront-cart/internal/infrastructure/kafka"
	"github.com/example/storefront-cart/internal/infrastructure/kinesis"
	"github.com/example/storefront-cart/internal/logger"
	"go.uber.org/zap"
)

var (
	producer *kafka.Producer
	log      *zap.Logger
)

func init() {
	cfg := config.FromEnv()
	log = logger.Must(cfg.LogLevel, false).Named("relay")
	producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	log.Info("initialized", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
}

// handler re-publishes snapshot table changes on the change channel so API
// instances refresh carts written by other writers.
func handler(ctx context.Context, kinesisEvent events.KinesisEvent) (events.KinesisEventResponse, error) {
	var batchItemFailures []events.KinesisBatchItemFailure

	for _, record := range kinesisEvent.Records {
		event, err := kinesis.ConvertFromKinesisRecord(record)
		if err != nil {
			log.Error("convert record", zap.String("event_id", record.EventID), zap.Error(err))
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
			continue
		}
		if event == nil {
			continue
		}

		if err := producer.Publish(ctx, event.AggregateID, event); err != nil {
			log.Error("publish event",
				zap.String("profile", event.AggregateID),
				zap.String("event_type", event.EventType),
				zap.Int64("version", event.Version),
				zap.Error(err),
			)
			batchItemFailures = append(batchItemFailures, events.KinesisBatchItemFailure{
				ItemIdentifier: record.Kinesis.SequenceNumber,
			})
		}
	}

	log.Info("batch relayed",
		zap.Int("records", len(kinesisEvent.Records)),
		zap.Int("failures", len(batchItemFailures)),
	)
	return events.KinesisEventResponse{BatchItemFailures: batchItemFailures}, nil
}

func main() {
	defer producer.Close()
	lambda.Start(handler)
}
