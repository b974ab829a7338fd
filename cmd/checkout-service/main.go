// cmd/checkout-service/main.go
package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/nacos"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/application/saga"
	"storefront/internal/service/order/domain/port"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/interfaces"
)

const serviceName = "checkout-service"

// main 函数是应用的"组装根" (Composition Root)
// 它根据配置选择库存和订单的存储实现，组装结账流程，然后启动 HTTP 服务。
func main() {
	cfg, err := bootstrap.Init("")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(cfg.App.LogLevel, cfg.App.LogPretty)

	var cleanups []func(ctx context.Context) error

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 1. 存储
	stores, err := openStores(initCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	cleanups = append(cleanups, stores.close)
	seedStock(initCtx, stores.stock, cfg.Checkout.SeedStock)

	// 2. 配置中心与店铺设置
	var nacosClient *nacos.Client
	if cfg.Infra.Nacos.Enabled {
		nacosClient, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create nacos client")
		}
		cleanups = append(cleanups, func(context.Context) error { nacosClient.Close(); return nil })
	}
	settings, err := buildSettings(cfg, nacosClient, &cleanups)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build checkout settings")
	}

	// 3. 补偿失败告警
	var reporter port.ReconciliationReporter = adapter.ReconciliationLogAdapter{}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ReconciliationTopic)
		cleanups = append(cleanups, func(context.Context) error { return writer.Close() })
		reporter = adapter.NewReconciliationKafkaAdapter(writer)
	}

	// 4. 指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := saga.NewMetrics(registry)

	// 5. 组装结账流程
	tracer := otel.Tracer(serviceName)
	orchestrator := saga.NewOrchestrator(stores.stock, stores.orders, tracer,
		saga.WithRetryPolicy(saga.RetryPolicy{
			MaxConflictRetries: cfg.Checkout.ConflictRetries,
			BaseBackoff:        cfg.Checkout.ConflictBackoff,
		}),
		saga.WithCompensationTimeout(cfg.Checkout.CompensationTimeout),
		saga.WithReporter(reporter),
		saga.WithMetrics(metrics),
	)
	checkoutService := application.NewCheckoutService(orchestrator, stores.orders, settings, tracer, cfg.Checkout.ProcessingTimeout)
	handler := interfaces.NewOrderHandler(checkoutService, registry)

	err = bootstrap.StartService(cfg, nacosClient, bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Router)
		},
		Cleanups: cleanups,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("checkout service stopped with error")
	}
}

func buildSettings(cfg *bootstrap.Config, nacosClient *nacos.Client, cleanups *[]func(ctx context.Context) error) (port.SettingsProvider, error) {
	local := adapter.SettingsDocument{
		TaxRate:      cfg.Checkout.TaxRate,
		ShippingExpr: cfg.Checkout.ShippingExpr,
	}
	if nacosClient == nil || cfg.Infra.Nacos.SettingsDataID == "" {
		return adapter.NewStaticSettings(local)
	}
	settings, err := adapter.NewNacosSettings(nacosClient, cfg.Infra.Nacos.SettingsDataID, local)
	if err != nil {
		return nil, err
	}
	*cleanups = append(*cleanups, func(context.Context) error { return settings.Close() })
	return settings, nil
}

// seedStock 在开发环境中初始化商品库存
func seedStock(ctx context.Context, store port.StockStore, seed map[string]int) {
	if len(seed) == 0 {
		return
	}
	seeder, ok := store.(port.StockSeeder)
	if !ok {
		log.Warn().Msg("Stock store does not support seeding, skipping seed_stock")
		return
	}
	for productID, qty := range seed {
		if err := seeder.SeedStock(ctx, productID, qty); err != nil {
			log.Warn().Err(err).Str("product", productID).Msg("could not seed stock")
			continue
		}
		log.Info().Str("product", productID).Int("quantity", qty).Msg("Seeded stock")
	}
}
