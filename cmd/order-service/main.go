package main

import (
	"context"
	"errors"
	"fmt"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nikolayk812/orderfan/internal/broadcast"
	"github.com/nikolayk812/orderfan/internal/config"
	"github.com/nikolayk812/orderfan/internal/db"
	"github.com/nikolayk812/orderfan/internal/httpapi"
	"github.com/nikolayk812/orderfan/internal/metrics"
	"github.com/nikolayk812/orderfan/internal/outbox"
	"github.com/nikolayk812/orderfan/internal/pipeline"
	"github.com/nikolayk812/orderfan/internal/queue"
	"github.com/nikolayk812/orderfan/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Config not loaded", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("db.Migrate: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		return fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer closeWithLog("redis", rdb.Close)

	store, err := repository.NewOrder(pool)
	if err != nil {
		return fmt.Errorf("repository.NewOrder: %w", err)
	}
	outboxRepo, err := repository.NewOutbox(pool)
	if err != nil {
		return fmt.Errorf("repository.NewOutbox: %w", err)
	}

	consumerName := cfg.Queue.Consumer
	if consumerName == "" {
		consumerName = "order-service-" + uuid.NewString()
	}

	stream, err := queue.NewRedisStream(ctx, rdb, queue.StreamConfig{
		Stream:            cfg.Queue.Stream,
		Group:             cfg.Queue.Group,
		Consumer:          consumerName,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxDeliveries:     cfg.Queue.MaxDeliveries,
	})
	if err != nil {
		return fmt.Errorf("queue.NewRedisStream: %w", err)
	}

	topicSink, closeTopic, err := newTopicSink(cfg)
	if err != nil {
		return fmt.Errorf("newTopicSink: %w", err)
	}
	defer closeTopic()

	ceProtocol, err := cehttp.New(
		cehttp.WithTarget(cfg.EventBus.Target),
		cehttp.WithClient(http.Client{Timeout: cfg.EventBus.Timeout}),
	)
	if err != nil {
		return fmt.Errorf("cehttp.New: %w", err)
	}
	busSink, err := broadcast.NewEventBusSink(ceProtocol, cfg.EventBus.Name,
		broadcast.WithSendTimeout(cfg.EventBus.Timeout))
	if err != nil {
		return fmt.Errorf("broadcast.NewEventBusSink: %w", err)
	}

	sinks := []broadcast.Sink{topicSink, busSink}
	if cfg.Queue.Bridge {
		bridge, err := queue.NewBridgeSink(stream)
		if err != nil {
			return fmt.Errorf("queue.NewBridgeSink: %w", err)
		}
		sinks = append(sinks, bridge)
	}

	publisher, err := broadcast.NewPublisher(sinks, broadcast.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("broadcast.NewPublisher: %w", err)
	}

	orders, err := pipeline.New(store, outboxRepo, publisher, m)
	if err != nil {
		return fmt.Errorf("pipeline.New: %w", err)
	}

	decoder, err := queue.NewDecoder()
	if err != nil {
		return fmt.Errorf("queue.NewDecoder: %w", err)
	}
	consumer, err := queue.NewConsumer(stream, decoder, queue.ConsumerConfig{
		BatchSize: cfg.Queue.BatchSize,
		Wait:      cfg.Queue.Wait,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("queue.NewConsumer: %w", err)
	}

	relay, err := outbox.NewRelay(store, outboxRepo, publisher, outbox.RelayConfig{
		Interval:    cfg.Outbox.Interval,
		GracePeriod: cfg.Outbox.GracePeriod,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
		Metrics:     m,
	})
	if err != nil {
		return fmt.Errorf("outbox.NewRelay: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.RouterConfig{
		Orders:  orders,
		Drainer: consumer,
		Checks: map[string]httpapi.HealthCheck{
			"postgres": pool.Ping,
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
		Metrics:  m,
		Gatherer: reg,
	})
	if err != nil {
		return fmt.Errorf("httpapi.NewRouter: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// a drain cycle may long-poll for the whole queue wait
		WriteTimeout: cfg.Queue.Wait + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	relayCtx, cancelRelay := context.WithCancel(ctx)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(relayCtx); err != nil {
			slog.Error("Relay stopped", "error", err)
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", cfg.HTTPAddr, "topic_backend", cfg.TopicBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			cancelRelay()
			<-relayDone
			return fmt.Errorf("server.ListenAndServe: %w", err)
		}
	}

	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)

	cancelRelay()
	<-relayDone

	if shutdownErr != nil {
		return fmt.Errorf("server.Shutdown: %w", shutdownErr)
	}

	slog.Info("Server exited properly")
	return nil
}

// newTopicSink connects the configured pub/sub backend. The returned func
// releases its clients.
func newTopicSink(cfg config.Config) (broadcast.Sink, func(), error) {
	switch cfg.TopicBackend {
	case config.TopicBackendKafka:
		writer, err := broadcast.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("broadcast.NewKafkaWriter: %w", err)
		}
		sink, err := broadcast.NewKafkaSink(writer)
		if err != nil {
			return nil, nil, fmt.Errorf("broadcast.NewKafkaSink: %w", err)
		}
		return sink, func() { closeWithLog("kafka", writer.Close) }, nil

	case config.TopicBackendNATS:
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("order-service"))
		if err != nil {
			return nil, nil, fmt.Errorf("nats.Connect: %w", err)
		}
		sink, err := broadcast.NewNATSSink(conn, cfg.NATS.Subject)
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("broadcast.NewNATSSink: %w", err)
		}
		return sink, func() { closeWithLog("nats", conn.Drain) }, nil

	case config.TopicBackendRabbitMQ:
		conn, ch, err := broadcast.SetupExchange(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, nil, fmt.Errorf("broadcast.SetupExchange: %w", err)
		}
		sink, err := broadcast.NewRabbitMQSink(ch, cfg.RabbitMQ.Exchange)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("broadcast.NewRabbitMQSink: %w", err)
		}
		return sink, func() {
			closeWithLog("rabbitmq channel", ch.Close)
			closeWithLog("rabbitmq", conn.Close)
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown topic backend: %q", cfg.TopicBackend)
}

func closeWithLog(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Warn("Client not closed", "client", name, "error", err)
	}
}
