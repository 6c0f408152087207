package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "go.uber.org/automaxprocs"

	"github.com/parleychat/parley/application"
	"github.com/parleychat/parley/internal/chat"
	"github.com/parleychat/parley/internal/json"
	"github.com/parleychat/parley/internal/network/acceptor"
	"github.com/parleychat/parley/internal/network/framer"
	"github.com/parleychat/parley/pkg/log"
	"github.com/parleychat/parley/pkg/metrics"
	"github.com/parleychat/parley/pkg/util/retry"
)

// serverConfig 对应配置文件中的 server 段。
type serverConfig struct {
	Listen       string `mapstructure:"listen"`
	MaxFrameSize uint32 `mapstructure:"maxFrameSize"`
}

// metricsConfig 对应配置文件中的 metrics 段。
type metricsConfig struct {
	Listen string `mapstructure:"listen"`
}

func init() {
	metrics.Register(prometheus.DefaultRegisterer)
}

func main() {
	app := application.New()
	if err := app.Run(); err != nil {
		log.Error("application bootstrap failed", zap.Error(err))
		os.Exit(1)
	}

	srvCfg := serverConfig{Listen: "0.0.0.0:12000"}
	if err := app.Config().UnmarshalKey("server", &srvCfg); err != nil {
		log.Error("invalid server config", zap.Error(err))
		os.Exit(1)
	}
	metCfg := metricsConfig{}
	if err := app.Config().UnmarshalKey("metrics", &metCfg); err != nil {
		log.Error("invalid metrics config", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := chat.NewServer()
	defer server.Close()

	// 快速重启时监听地址可能仍处于 TIME_WAIT，带退避地重试绑定。
	var acc acceptor.Acceptor
	err := retry.Do(ctx, func() error {
		a, err := acceptor.NewTCPAcceptor(
			srvCfg.Listen,
			framer.NewLengthPrefixedFramer(srvCfg.MaxFrameSize),
			server.Registry(),
		)
		if err != nil {
			return err
		}
		acc = a
		return nil
	}, retry.Attempts(5), retry.Sleep(500*time.Millisecond))
	if err != nil {
		log.Error("failed to start acceptor", zap.Error(err))
		os.Exit(1)
	}

	log.Info("chat server listening", zap.Stringer("addr", acc.Addr()))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := acc.Serve(groupCtx, server)
		if groupCtx.Err() != nil {
			// 收到关停信号后的 accept 失败视为正常退出。
			return nil
		}
		return err
	})

	var metricsSrv *http.Server
	if metCfg.Listen != "" {
		metricsSrv = newMetricsServer(metCfg.Listen, server.Registry())
		group.Go(func() error {
			log.Info("metrics server listening", zap.String("addr", metCfg.Listen))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		_ = acc.Close()
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

// newMetricsServer 构建运维端点：
//   - /metrics          Prometheus 指标；
//   - /debug/sessions   在线成员快照（JSON）。
func newMetricsServer(addr string, registry *chat.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/sessions", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(registry.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}
