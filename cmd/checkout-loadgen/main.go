// cmd/checkout-loadgen/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/tracing"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
)

const serviceName = "checkout-loadgen"

// loadgen 并发地对同一个商品下单，用来观察库存竞争时的行为:
// 成功的订单数不应超过库存，其余请求应得到 409。
type options struct {
	BaseURL     string
	ProductID   string
	Orders      int
	Concurrency int
	Quantity    int
	UnitPrice   decimal.Decimal
	Timeout     time.Duration
}

type summary struct {
	Created  int
	Statuses map[int]int
	Codes    map[string]int
	Failed   int
}

func main() {
	logger.Init(getEnv("LOG_LEVEL", "info"), true)

	shutdown, err := tracing.InitTracerProvider(serviceName, getEnv("JAEGER_ENDPOINT", ""), 1)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}
	defer func() { _ = shutdown(context.Background()) }()

	price, err := decimal.NewFromString(getEnv("LOADGEN_UNIT_PRICE", "9.99"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid LOADGEN_UNIT_PRICE")
	}
	opts := options{
		BaseURL:     getEnv("CHECKOUT_URL", "http://localhost:8081"),
		ProductID:   getEnv("LOADGEN_PRODUCT", "SKU-1"),
		Orders:      getEnvInt("LOADGEN_ORDERS", 50),
		Concurrency: getEnvInt("LOADGEN_CONCURRENCY", 10),
		Quantity:    getEnvInt("LOADGEN_QUANTITY", 1),
		UnitPrice:   price,
		Timeout:     10 * time.Second,
	}

	client := httpclient.NewClient(otel.Tracer(serviceName))
	started := time.Now()
	s, err := run(context.Background(), client, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("load generation failed")
	}

	codes := make([]string, 0, len(s.Codes))
	for code := range s.Codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	ev := log.Info().Int("created", s.Created).Int("transport_errors", s.Failed).Dur("elapsed", time.Since(started))
	for _, code := range codes {
		ev = ev.Int(code, s.Codes[code])
	}
	ev.Msgf("Placed %d orders for %s", opts.Orders, opts.ProductID)
}

// run 按 opts 并发下单并汇总结果。单个请求失败不会中止整个运行。
func run(ctx context.Context, client *httpclient.Client, opts options) (summary, error) {
	if opts.Orders <= 0 || opts.Concurrency <= 0 || opts.Quantity <= 0 {
		return summary{}, fmt.Errorf("orders, concurrency and quantity must be positive")
	}

	var (
		mu sync.Mutex
		s  = summary{Statuses: make(map[int]int), Codes: make(map[string]int)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := 0; i < opts.Orders; i++ {
		g.Go(func() error {
			status, code, err := placeOrder(gctx, client, opts, i)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.Failed++
				log.Warn().Err(err).Int("request", i).Msg("Order request failed")
				return nil
			}
			s.Statuses[status]++
			if status == http.StatusCreated {
				s.Created++
				return nil
			}
			s.Codes[code]++
			return nil
		})
	}
	return s, g.Wait()
}

func placeOrder(ctx context.Context, client *httpclient.Client, opts options, i int) (int, string, error) {
	ctx, span := client.Tracer.Start(ctx, "loadgen.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.Int("loadgen.request", i), attribute.String("product.id", opts.ProductID))

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req := application.CreateOrderRequest{
		Customer:        domain.Customer{Email: fmt.Sprintf("buyer%d@example.com", i), Name: fmt.Sprintf("Buyer %d", i)},
		ShippingAddress: domain.ShippingAddress{Street: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		PaymentMethod:   string(domain.PaymentCard),
		Items: []application.OrderItemRequest{
			{ProductID: opts.ProductID, Quantity: opts.Quantity, UnitPrice: opts.UnitPrice},
		},
	}
	var body struct {
		Error string `json:"error"`
	}
	status, err := client.DoJSON(ctx, http.MethodPost, opts.BaseURL+"/api/v1/orders", req, &body)
	return status, body.Error, err
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
