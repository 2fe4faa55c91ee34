package node

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Metrics is the node's counter set, served at GET /metrics in Prometheus
// text exposition format, bound to loopback by default per spec §6.
type Metrics struct {
	registry *prometheus.Registry

	MsgsIn                 prometheus.Counter
	MsgsDroppedOversize    prometheus.Counter
	MsgsDroppedReplay      prometheus.Counter
	MsgsDroppedRate        prometheus.Counter
	MsgsDroppedDecodeError prometheus.Counter
	MsgsDroppedInvalidSig  prometheus.Counter
	MsgsDroppedLegacyEpoch prometheus.Counter
	MsgsDroppedUnknownPeer prometheus.Counter
	VotesAccepted          prometheus.Counter
	CommitsFinalized       prometheus.Counter
	FinalizedHeight        prometheus.Gauge

	srv *http.Server
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		MsgsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_in_total", Help: "Consensus messages received from gossip.",
		}),
		MsgsDroppedOversize: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_oversize_total", Help: "Messages dropped for exceeding max_wire_bytes.",
		}),
		MsgsDroppedReplay: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_replay_total", Help: "Messages dropped as replays of an already-seen digest.",
		}),
		MsgsDroppedRate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_rate_total", Help: "Messages dropped by the per-peer token bucket.",
		}),
		MsgsDroppedDecodeError: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_decode_error_total", Help: "Messages dropped for failing canonical decode.",
		}),
		MsgsDroppedInvalidSig: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_invalid_sig_total", Help: "Messages dropped for a signature verification failure.",
		}),
		MsgsDroppedLegacyEpoch: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_legacy_epoch_total", Help: "Messages dropped pre-validation for carrying epoch 0 under require_epoch.",
		}),
		MsgsDroppedUnknownPeer: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_msgs_dropped_unknown_peer_total", Help: "Messages dropped from a peer outside the allowlist.",
		}),
		VotesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_votes_accepted_total", Help: "Votes admitted by the Tide gadget.",
		}),
		CommitsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amunchain_commits_finalized_total", Help: "Heights finalized by a quorum commit.",
		}),
		FinalizedHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amunchain_finalized_height", Help: "Highest finalized block height.",
		}),
	}

	reg.MustRegister(
		m.MsgsIn, m.MsgsDroppedOversize, m.MsgsDroppedReplay, m.MsgsDroppedRate,
		m.MsgsDroppedDecodeError, m.MsgsDroppedInvalidSig, m.MsgsDroppedLegacyEpoch,
		m.MsgsDroppedUnknownPeer, m.VotesAccepted, m.CommitsFinalized, m.FinalizedHeight,
	)
	return m
}

// Serve starts the loopback-bound metrics HTTP server. It does not block;
// serve errors other than a clean Shutdown are logged by the caller.
func (m *Metrics) Serve(listenAddr string, log *logrus.Entry) <-chan error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.srv = &http.Server{Addr: listenAddr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		ln, err := net.Listen("tcp", listenAddr)
		if err != nil {
			errCh <- errors.Wrap(err, "binding metrics listener")
			return
		}
		log.WithField("addr", listenAddr).Info("serving metrics")
		if err := m.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully stops the metrics server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(shutdownCtx)
}
