package netwrk

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xiaogangfan/rocketmq/log"
)

// HttpServ exposes /metrics for the node's prometheus registry.
type HttpServ struct {
	addr     string
	gatherer prometheus.Gatherer
	serv     *http.Server
	listener net.Listener
}

func NewHttpServ(addr string, gatherer prometheus.Gatherer) *HttpServ {
	log.Infof("Creating HttpServ on %s", addr)
	return &HttpServ{addr: addr, gatherer: gatherer}
}

// Start binds the address and serves in the background.
func (n *HttpServ) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(n.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	listener, err := net.Listen("tcp", n.addr)
	if err != nil {
		return err
	}
	n.listener = listener
	n.serv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Debugf("About to serve metrics on %v", listener.Addr())
		if err := n.serv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HttpServer error: %v", err)
		}
	}()
	return nil
}

func (n *HttpServ) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

func (n *HttpServ) Shutdown() error {
	if n.serv == nil {
		return nil
	}
	log.Infof("Closing HttpServ on %s", n.addr)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return n.serv.Shutdown(ctx)
}
