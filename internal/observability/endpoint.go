package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/observability/metrics"
)

// ComponentObservability identifies metrics endpoint errors
const ComponentObservability = "observability"

// Endpoint serves the metrics registry over HTTP
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	logger        *slog.Logger
}

// NewEndpoint creates an endpoint for m on listenAddress
func NewEndpoint(listenAddress string, m *Metrics) *Endpoint {
	logger := logging.ForService("observability")
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{listenAddress: listenAddress, metrics: m, logger: logger}
}

// Run listens on the configured address and serves until ctx is done
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component(ComponentObservability).
			Category(errors.CategoryNetwork).
			Context("address", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts the server down
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		e.logger.Info("metrics endpoint starting", slog.String("address", ln.Addr().String()))
		serveErr <- server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(ComponentObservability).
			Category(errors.CategoryNetwork).
			Build()
	case <-ctx.Done():
	}

	e.logger.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	<-serveErr
	if err != nil {
		return errors.New(err).
			Component(ComponentObservability).
			Category(errors.CategoryNetwork).
			Build()
	}
	return nil
}
