package main

import (
	"context"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/server"
)

var (
	serveHTTPAddr string
	serveGRPCAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the extraction API over HTTP and gRPC",
	Long: `Start the HTTP API (POST /api/extract, GET /healthz) and the gRPC
docextract.v1.ExtractionService. Both stop gracefully on SIGINT or SIGTERM.

An empty address disables that listener.

Examples:
  docextract serve
  docextract serve --http :8081 --grpc ""`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, logger, lv, err := loadConfig(false)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("http") {
			cfg.Server.HTTPAddr = serveHTTPAddr
		}
		if cmd.Flags().Changed("grpc") {
			cfg.Server.GRPCAddr = serveGRPCAddr
		}

		mgr, err := common.NewManager(cfgFile, logger)
		if err != nil {
			return err
		}
		mgr.OnChange(func(c *common.Config) {
			lvl := common.ParseLevel(c.Log.Level)
			if logLevel == "" && lv.Level() != lvl {
				lv.Set(lvl)
				logger.Info("log.level.changed", "level", lvl.String())
			}
		})
		mgr.Watch()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		scfg := server.Config{
			HTTPAddr:       cfg.Server.HTTPAddr,
			GRPCAddr:       cfg.Server.GRPCAddr,
			RequestTimeout: cfg.Server.RequestTimeout,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
		}
		errCh := make(chan error, 2)

		var httpSrv *server.HTTPServer
		if scfg.HTTPAddr != "" {
			var opts []server.HTTPOption
			if a.jobs != nil {
				opts = append(opts, server.WithJobStore(a.jobs))
			}
			httpSrv = server.NewHTTPServer(scfg, a.processor, logger, opts...)
			lis, err := net.Listen("tcp", scfg.HTTPAddr)
			if err != nil {
				logger.Error("http.listen.failed", "addr", scfg.HTTPAddr, "error", err)
				return err
			}
			go func() { errCh <- httpSrv.Serve(lis) }()
		}

		var grpcSrv *server.GRPCServer
		if scfg.GRPCAddr != "" {
			grpcSrv = server.NewGRPCServer(scfg, a.processor, logger)
			lis, err := net.Listen("tcp", scfg.GRPCAddr)
			if err != nil {
				logger.Error("grpc.listen.failed", "addr", scfg.GRPCAddr, "error", err)
				if httpSrv != nil {
					_ = httpSrv.Shutdown(context.Background())
				}
				return err
			}
			go func() { errCh <- grpcSrv.Serve(lis) }()
		}

		if httpSrv == nil && grpcSrv == nil {
			return common.NewAppError(common.KindConfig, "both server.http_addr and server.grpc_addr are empty", nil)
		}

		var serveErr error
		select {
		case <-ctx.Done():
			logger.Info("serve.shutdown", "reason", ctx.Err())
		case serveErr = <-errCh:
			logger.Error("serve.failed", "error", serveErr)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if httpSrv != nil {
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http.shutdown.failed", "error", err)
			}
		}
		if grpcSrv != nil {
			grpcSrv.Stop()
		}
		logger.Info("serve.stopped")
		return serveErr
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTPAddr, "http", "", "HTTP listen address (default from server.http_addr)")
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc", "", "gRPC listen address (default from server.grpc_addr)")
}
