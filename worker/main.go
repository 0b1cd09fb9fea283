package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/dedupe"
	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

// rebuildTrigger is the payload of a rebuild request, typically sent by a
// source webhook after a record changed.
type rebuildTrigger struct {
	ID          string `json:"id"`
	Table       string `json:"table"`
	Reason      string `json:"reason"`
	RequestedAt string `json:"requested_at"`
}

// buildKey is the debounce key shared by every trigger: any trigger
// rebuilds all tables.
const buildKey = "build"

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	rt, err := ingest.Setup(&cfg.Build, log)
	if err != nil {
		log.Error("init pipeline", slog.Any("err", err))
		os.Exit(1)
	}
	defer rt.Close()

	pub, closePub, err := publish.FromConfig(ctx, cfg.Publish, cfg.Common, log)
	if err != nil {
		log.Error("init publisher", slog.Any("err", err))
		os.Exit(1)
	}
	defer closePub()

	svc := &service{runtime: rt.Pipeline, cache: rt.Cache, publisher: pub, log: log}
	window := dedupe.NewWindow(cfg.DedupeCapacity, cfg.DebounceWindow)

	// The first build may be served from a fresh cache entry.
	if err := svc.Startup(ctx); err != nil {
		log.Error("initial build", slog.Any("err", err))
	} else {
		window.MarkSeen(buildKey)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        cfg.FetchMaxWait,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
		slog.Any("publish_targets", pub.Destinations()),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := processMessage(ctx, log, svc, window, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			if !sendToDLQ(ctx, log, dlqWriter, msg, err) {
				if ctx.Err() != nil {
					return
				}
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
				continue
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

// sendToDLQ writes msg with error context, retrying with exponential
// backoff. It reports whether the write succeeded.
func sendToDLQ(ctx context.Context, log *slog.Logger, w *kafka.Writer, msg kafka.Message, cause error) bool {
	dlqMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
			kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
			kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		),
	}

	for attempt := range 5 {
		dlqErr := w.WriteMessages(ctx, dlqMsg)
		if dlqErr == nil {
			log.Info("message sent to DLQ",
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("attempt", attempt+1),
			)
			return true
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		log.Warn("DLQ write failed, retrying",
			slog.Any("err", dlqErr),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			log.Info("context canceled during DLQ retry")
			return false
		}
	}
	return false
}

type rebuilder interface {
	Rebuild(ctx context.Context, reason string) error
}

// processMessage decodes a trigger and rebuilds unless an identical
// delivery or another rebuild already happened inside the debounce window.
func processMessage(ctx context.Context, log *slog.Logger, svc rebuilder, window *dedupe.Window, msg kafka.Message) error {
	trigger, err := decodeTrigger(msg.Value)
	if err != nil {
		return err
	}

	if trigger.ID != "" {
		if window.IsSeen("id:" + trigger.ID) {
			log.Debug("duplicate trigger", slog.String("id", trigger.ID))
			return nil
		}
	}
	if window.IsSeen(buildKey) {
		log.Info("rebuild debounced",
			slog.String("reason", trigger.Reason),
			slog.String("table", trigger.Table),
		)
		if trigger.ID != "" {
			window.MarkSeen("id:" + trigger.ID)
		}
		return nil
	}

	if err := svc.Rebuild(ctx, trigger.Reason); err != nil {
		return err
	}

	window.MarkSeen(buildKey)
	if trigger.ID != "" {
		window.MarkSeen("id:" + trigger.ID)
	}
	return nil
}

// decodeTrigger accepts an empty body as a bare "rebuild now".
func decodeTrigger(value []byte) (rebuildTrigger, error) {
	var trigger rebuildTrigger
	if len(strings.TrimSpace(string(value))) == 0 {
		trigger.Reason = "manual"
		return trigger, nil
	}
	if err := json.Unmarshal(value, &trigger); err != nil {
		return trigger, fmt.Errorf("decode trigger: %w", err)
	}
	trigger.ID = strings.TrimSpace(trigger.ID)
	trigger.Reason = strings.TrimSpace(trigger.Reason)
	if trigger.Reason == "" {
		trigger.Reason = "webhook"
	}
	return trigger, nil
}
