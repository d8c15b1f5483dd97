package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/rpc"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

// Server is a ledger node: the ledger, its block sealer and the HTTP API.
type Server struct {
	ledger *ledger.Ledger
	cfg    Config

	httpListener    net.Listener
	metricsListener net.Listener

	privateKey ed25519.PrivateKey
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := logging.FromContext(ctx)

	addr, err := net.ResolveTCPAddr("tcp", cfg.RawHTTPListener)
	if err != nil {
		return nil, err
	}
	httpListener, err := net.Listen(addr.Network(), addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	var metricsListener net.Listener
	if cfg.MetricsPort != nil {
		metricsListener, err = net.Listen("tcp", fmt.Sprintf(":%d", *cfg.MetricsPort))
		if err != nil {
			httpListener.Close()
			return nil, fmt.Errorf("failed to listen for metrics: %w", err)
		}
	}

	closeListeners := func() {
		httpListener.Close()
		if metricsListener != nil {
			metricsListener.Close()
		}
	}

	s, err := loadState(ctx, cfg.DataDir, os.Getenv(KeyEnvVar))
	if err != nil {
		closeListeners()
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if err := saveState(cfg.DataDir, s); err != nil {
		closeListeners()
		return nil, fmt.Errorf("saving state: %w", err)
	}
	privateKey := ed25519.PrivateKey(s.PrivKey)
	owner := signing.Address(privateKey.Public().(ed25519.PublicKey))

	l, err := ledger.New(
		ctx,
		cfg.DbDir,
		ledger.WithConfig(cfg.Ledger),
		ledger.WithOwner(owner),
		ledger.WithPayoutHook(func(ctx context.Context, owner types.Address, amount *big.Int) {
			logging.FromContext(ctx).Info("funds withdrawn",
				zap.Stringer("owner", owner),
				zap.String("amount", types.FormatEther(amount)+" ETH"),
			)
		}),
	)
	if err != nil {
		closeListeners()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	logger.Info("ledger ready",
		zap.Stringer("owner", l.Owner()),
		zap.String("fee", types.FormatEther(l.RegistrationFee())+" ETH"),
		zap.Uint64("chain-id", l.ChainID()),
		zap.Uint64("participants", l.ParticipantCount()),
	)

	return &Server{
		ledger:          l,
		cfg:             cfg,
		httpListener:    httpListener,
		metricsListener: metricsListener,
		privateKey:      privateKey,
	}, nil
}

// Close releases the listeners and closes the ledger.
func (s *Server) Close() error {
	var result *multierror.Error
	if err := s.httpListener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, err)
	}
	if s.metricsListener != nil {
		if err := s.metricsListener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, err)
		}
	}
	result = multierror.Append(result, s.ledger.Close())
	return result.ErrorOrNil()
}

// HTTPAddr returns the address that the API is served on.
func (s *Server) HTTPAddr() net.Addr {
	return s.httpListener.Addr()
}

// MetricsAddr returns the address of the metrics endpoint or nil if it is
// disabled.
func (s *Server) MetricsAddr() net.Addr {
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

func (s *Server) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Server) Owner() types.Address {
	return s.ledger.Owner()
}

func (s *Server) PrivateKey() ed25519.PrivateKey {
	return s.privateKey
}

// Start serves the API and seals blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	serverGroup, ctx := errgroup.WithContext(ctx)

	logger := logging.FromContext(ctx)

	logger.Info("starting block sealer", zap.Duration("interval", s.cfg.Ledger.BlockInterval))
	serverGroup.Go(func() error {
		return s.ledger.Run(ctx)
	})

	rpcServer := rpc.NewServer(s.ledger, logger)
	server := &http.Server{
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: time.Second * 5,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serverGroup.Go(func() error {
		logger.Sugar().Infof("API server listening on %s", s.httpListener.Addr())
		err := server.Serve(s.httpListener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	var metricsServer *http.Server
	if s.metricsListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: time.Second * 5}
		serverGroup.Go(func() error {
			logger.Sugar().Infof("metrics server listening on %s", s.metricsListener.Addr())
			err := metricsServer.Serve(s.metricsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	// Wait for the server to shut down gracefully
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("failed to shutdown server: %s", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().Errorf("failed to shutdown metrics server: %s", err)
		}
	}
	if err := serverGroup.Wait(); err != nil {
		logger.Sugar().Errorf("error when waiting to shutdown servers: %s", err)
	}
	return nil
}
