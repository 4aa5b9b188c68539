package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	pkgkafka "PerpLens/pkg/kafka"
)

// KafkaFlowHandler consumes market events from Kafka and writes them to storage.
type KafkaFlowHandler struct {
	topic   string
	storage domrepo.Storage
	metrics domrepo.Metrics
}

func NewKafkaFlowHandler(topic string, storage domrepo.Storage, metrics domrepo.Metrics) *KafkaFlowHandler {
	return &KafkaFlowHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaFlowHandler) Topic() string { return h.topic }

// Handle decodes one MarketEvent message and stores it.
func (h *KafkaFlowHandler) Handle(ctx context.Context, b []byte) error {
	var e models.MarketEvent
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if e.Symbol == "" || e.Timestamp <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid event: symbol=%q ts=%d", e.Symbol, e.Timestamp)
	}

	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.UnixMilli(e.Timestamp)).Seconds())

	start := time.Now()
	err := h.storage.Store(ctx, &e)
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordEventIngested("clickhouse", e.Symbol)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaFlowHandler)(nil)
