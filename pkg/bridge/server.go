package bridge

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	ws "github.com/robotalks/eeprom.go/pkg/transport/websocket"
)

// Paths served by Server.
const (
	DevicePath  = "/eeprom"
	MetricsPath = "/metrics"
)

// Server serves the bridge over websocket along with metrics.
type Server struct {
	Bridge   *Bridge
	Addr     string
	Gatherer prometheus.Gatherer

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout time.Duration
}

// NewServer creates a Server listening on addr.
func NewServer(b *Bridge, addr string) *Server {
	return &Server{
		Bridge:          b,
		Addr:            addr,
		Gatherer:        prometheus.DefaultGatherer,
		ShutdownTimeout: 5 * time.Second,
	}
}

// WithGatherer sets the metrics source.
func (s *Server) WithGatherer(g prometheus.Gatherer) *Server {
	s.Gatherer = g
	return s
}

// Name implements framework.Named.
func (s *Server) Name() string {
	return "websocket"
}

// Handler returns the HTTP handler of the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(DevicePath, websocket.Server{Handler: s.serveConn})
	if s.Gatherer != nil {
		mux.Handle(MetricsPath, promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) serveConn(conn *websocket.Conn) {
	remote := conn.Request().RemoteAddr
	if err := s.Bridge.Serve(conn.Request().Context(), "websocket", ws.Wrap(conn)); err != nil {
		if err == ErrBusy {
			glog.Warningf("reject %s: %v", remote, err)
			return
		}
		glog.Errorf("session %s: %v", remote, err)
	}
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	glog.Infof("listening on %s", ln.Addr())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	<-errCh
	return ctx.Err()
}
