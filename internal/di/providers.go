package di

import (
	"context"
	"fmt"
	"time"

	"PerpLens/internal/domain/repository"
	mid "PerpLens/internal/middleware"
	internalrepo "PerpLens/internal/repository"
	"PerpLens/internal/service/hyperliquid"
	"PerpLens/internal/usecase"
	pkgch "PerpLens/pkg/clickhouse"
	"PerpLens/pkg/config"
	pkgkafka "PerpLens/pkg/kafka"
	"PerpLens/pkg/metrics"
	"PerpLens/pkg/server"
)

// schemaDDL is applied idempotently on startup. ReplacingMergeTree dedupes
// repeated inserts for the same key, which keeps replays and config rewrites
// safe.
var schemaDDL = []string{
	"CREATE DATABASE IF NOT EXISTS perplens",
	`CREATE TABLE IF NOT EXISTS perplens.perp_klines (
		bucket DateTime64(3), symbol String, timeframe String,
		open Float64, high Float64, low Float64, close Float64, volume Float64
	) ENGINE = ReplacingMergeTree ORDER BY (symbol, timeframe, bucket)`,
	`CREATE TABLE IF NOT EXISTS perplens.perp_trades_agg (
		ts Int64, symbol String,
		taker_buy_notional Float64, taker_sell_notional Float64
	) ENGINE = MergeTree ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS perplens.perp_asset_metrics (
		ts Int64, symbol String,
		open_interest Float64, funding_rate Nullable(Float64)
	) ENGINE = MergeTree ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS perplens.perp_orderbook_snapshots (
		ts Int64, symbol String,
		bid_depth Float64, ask_depth Float64
	) ENGINE = MergeTree ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS perplens.regime_configs (
		id Int64, name String, is_default UInt8, rolling_window Int32,
		breakout_cvd_z Float64, breakout_oi_z Float64, breakout_price_atr Float64,
		breakout_taker_high Float64, breakout_taker_low Float64,
		absorption_cvd_z Float64, absorption_price_atr Float64,
		trap_cvd_z Float64, trap_oi_z Float64,
		exhaustion_cvd_z Float64, exhaustion_rsi_high Float64, exhaustion_rsi_low Float64,
		stop_hunt_range_atr Float64, stop_hunt_close_atr Float64, noise_cvd_z Float64,
		created_at DateTime64(3), updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at) ORDER BY id`,
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, schemaDDL); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer. With the clickhouse backend
// no producer is needed and nil is returned.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideEventStorage creates ClickHouse storage repository.
func ProvideEventStorage(chClient *pkgch.Client) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB())
}

// ProvideEventPublisher creates Kafka publisher repository.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. The
// consumer only exists for the kafka backend, where it drains the topic back
// into ClickHouse.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Backend.Type != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaFlowHandler registers the handler for the market events topic.
func ProvideKafkaFlowHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaFlowHandler {
	return usecase.NewKafkaFlowHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideHyperliquidStream creates the Hyperliquid WebSocket stream.
func ProvideHyperliquidStream(cfg *config.Config) repository.MarketStream {
	return hyperliquid.New(
		cfg.Hyperliquid.WebSocketURL,
		cfg.Hyperliquid.Symbols,
		cfg.Hyperliquid.CandleInterval,
		cfg.Hyperliquid.ReconnectDelay,
		cfg.Hyperliquid.PingInterval,
	)
}

// ProvideFlowProcessor creates the event processor use case.
func ProvideFlowProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.FlowProcessor {
	return usecase.NewFlowProcessor(pub, store, metrics, cfg.Backend.Type)
}

// ProvideFlowCollector creates the stream collector use case.
func ProvideFlowCollector(
	stream repository.MarketStream,
	processor *usecase.FlowProcessor,
	metrics repository.Metrics,
) *usecase.FlowCollector {
	// Middleware pipeline between WebSocket and backend
	pipe := mid.NewRealtimePipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewFlowCollector(stream, processor, metrics, pipe)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.FlowCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaFlowHandler,
	chClient *pkgch.Client,
) *server.App {
	app := server.New(cfg, collector, consumer, kh, chClient)
	if collector != nil {
		app.FlowProc = collector.Processor()
	}
	return app
}
