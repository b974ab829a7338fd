// cmd/reconciliation-worker/main.go
package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/interfaces"
)

const serviceName = "reconciliation-worker"

// 对账 worker 消费结账服务发布的补偿失败事件，累计少计的库存，
// 通过 /api/v1/reconciliation 交给运维人工修正。
func main() {
	cfg, err := bootstrap.Init("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.LogLevel, cfg.App.LogPretty)

	if len(cfg.Infra.Kafka.Brokers) == 0 {
		log.Fatal().Msg("infra.kafka.brokers is required for the reconciliation worker")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	tracker := application.NewReconciliationTracker(registry)

	reader := mq.NewReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ReconciliationTopic, cfg.Infra.Kafka.ConsumerGroup)
	consumer := adapter.NewReconciliationConsumer(reader, tracker, otel.Tracer(serviceName))

	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- consumer.Run(consumeCtx) }()

	handler := interfaces.NewReconciliationHandler(tracker, registry)
	err = bootstrap.StartService(cfg, nil, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Cleanups: []func(ctx context.Context) error{
			func(context.Context) error { return reader.Close() },
			func(ctx context.Context) error {
				stopConsumer()
				select {
				case err := <-consumerDone:
					return err
				case <-ctx.Done():
					return errors.New("reconciliation consumer did not stop in time")
				}
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("reconciliation worker stopped with error")
	}
}
