package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/olehkaliuzhnyi/flow-wallet/internal/metrics"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/monitor"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/node"
	"github.com/olehkaliuzhnyi/flow-wallet/internal/storage"
	"github.com/olehkaliuzhnyi/flow-wallet/pkg/models"
)

// eventLine is one JSON line of monitor output.
type eventLine struct {
	models.TxEvent
	Amount string `json:"amount"`
}

func newMonitorCmd(a *app) *cobra.Command {
	var (
		once        bool
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "monitor <address>...",
		Short: "Print new transactions of addresses as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, _, err := a.entry()
			if err != nil {
				return err
			}
			p, err := a.provider()
			if err != nil {
				return err
			}
			pc, _ := a.cfg.Provider(n)
			store := storage.NewMemoryWatermarkStore()
			emit := eventPrinter(cmd.OutOrStdout(), p.Decimals())

			if once {
				return pollOnce(cmd.Context(), n, p, args, store, emit)
			}

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = a.cfg.Metrics.ListenAddr
			}
			m := metrics.New(prometheus.DefaultRegisterer)
			stopMetrics := serveMetrics(metricsAddr, a.log)
			defer stopMetrics()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr := monitor.NewManager(emit, store, monitor.WithMetrics(m))
			mgr.RegisterSource(n, p, pc.PollInterval)
			for _, addr := range args {
				if err := mgr.WatchAddress(n, addr); err != nil {
					return err
				}
			}
			if err := mgr.StartAll(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			mgr.StopAll()
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&once, "once", false, "poll each address once and exit")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics here (default metrics.listen_addr, empty disables)")
	return cmd
}

func eventPrinter(out io.Writer, decimals int32) monitor.EventHandler {
	var mu sync.Mutex
	enc := json.NewEncoder(out)
	return func(ev models.TxEvent) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(eventLine{TxEvent: ev, Amount: node.FormatUnits(ev.Transaction.Value, decimals)})
	}
}

func pollOnce(ctx context.Context, n models.Network, src monitor.TransactionSource, addrs []string, store storage.WatermarkStore, handle monitor.EventHandler) error {
	for _, addr := range addrs {
		mon := monitor.NewTransactionMonitor(n, src, addr, time.Second, store)
		done := make(chan error, 1)
		go func() {
			var herr error
			for ev := range mon.Events() {
				if err := handle(ev); err != nil && herr == nil {
					herr = err
				}
			}
			done <- herr
		}()
		_, err := mon.Poll(ctx)
		mon.Stop()
		if herr := <-done; err == nil {
			err = herr
		}
		if err != nil {
			return fmt.Errorf("monitor %s: %w", addr, err)
		}
	}
	return nil
}

func serveMetrics(addr string, log *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
