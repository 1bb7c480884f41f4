package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/chain/grpcoracle"
	"xdao.co/covenants/chain/oracleregistry"
	"xdao.co/covenants/config"
	"xdao.co/covenants/internal/logging"
	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/grpccas"
	"xdao.co/covenants/storage/localfs"

	_ "xdao.co/covenants/chain/httporacle"
	_ "xdao.co/covenants/chain/memchain"
)

const defaultListen = "127.0.0.1:7443"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("covenant-oracled", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", defaultListen, "listen address")
	backend := fs.String("backend", "", "oracle backend name (default from config)")
	configPath := fs.String("config", os.Getenv("COVENANTS_CONFIG"), "path to YAML config")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	archiveDir := fs.String("archive-dir", "", "also serve a record archive from this directory (a grpc:// mirror for covenantctl)")

	oracleregistry.RegisterFlags(fs, oracleregistry.UsageDaemon)

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *listBackends {
		for _, b := range oracleregistry.List(oracleregistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(out, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg, err := config.Load(*configPath, os.Environ())
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if *backend != "" {
		cfg.Oracle.Backend = *backend
	}
	if err := oracleregistry.ApplyOptions(fs, cfg.Oracle.Options); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	log, err := logging.New(errOut, cfg.LogLevel, logging.Format(cfg.LogFormat))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	o, closeFn, err := oracleregistry.Open(cfg.Oracle.Backend, oracleregistry.UsageDaemon)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}
	if closeFn != nil {
		defer closeFn()
	}

	var archive storage.CAS
	if *archiveDir != "" {
		dir, err := localfs.New(*archiveDir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
		archive = dir
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	log.Info("listening", "addr", lis.Addr().String(), "backend", cfg.Oracle.Backend, "network", cfg.Network, "archive", *archiveDir)
	if err := serve(ctx, lis, o, archive, log); err != nil {
		log.Error("serve", "err", err)
		return 1
	}
	return 0
}

// serve runs the oracle service, and the archive service when archive is
// non-nil, on lis until ctx is done, then drains in-flight calls.
func serve(ctx context.Context, lis net.Listener, o chain.Oracle, archive storage.CAS, log *slog.Logger) error {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(logCalls(log)))
	grpcoracle.RegisterOracleServer(s, &grpcoracle.Server{Oracle: o})
	if archive != nil {
		grpccas.RegisterArchiveServer(s, &grpccas.Server{CAS: archive})
	}

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()

	select {
	case err := <-errc:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		s.GracefulStop()
		<-errc
		return nil
	}
}

func logCalls(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}
		log.Log(ctx, level, "rpc",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"elapsed", time.Since(start),
		)
		return resp, err
	}
}
