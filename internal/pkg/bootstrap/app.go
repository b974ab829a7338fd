// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/nacos"
	"storefront/internal/pkg/tracing"
)

type AppCtx struct {
	Router chi.Router
	Nacos  *nacos.Client
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 允许每个服务注册自己独特的 HTTP 路由
	Cleanups         []func(ctx context.Context) error
}

// StartService 封装了通用的启动和优雅关停逻辑，阻塞直到收到退出信号。
func StartService(cfg *Config, nacosClient *nacos.Client, info AppInfo) error {
	shutdownTracer, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		return fmt.Errorf("failed to initialize tracer provider: %w", err)
	}

	var ip string
	if nacosClient != nil {
		ip, err = GetOutboundIP()
		if err != nil {
			return fmt.Errorf("failed to get outbound IP address: %w", err)
		}
		if err := nacosClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			return err
		}
	}

	router := chi.NewRouter()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Router: router, Nacos: nacosClient})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("could not listen on %s: %w", server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关停顺序: 先从注册中心摘除，再停 HTTP，最后释放依赖和 tracer
		if nacosClient != nil {
			if err := nacosClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
				log.Error().Err(err).Msg("Error deregistering from Nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down http server")
		}
		for i := len(info.Cleanups) - 1; i >= 0; i-- {
			if err := info.Cleanups[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error during cleanup")
			}
		}
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
	return err
}

// GetOutboundIP 返回本机对外通信使用的 IP，用于服务注册。
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
