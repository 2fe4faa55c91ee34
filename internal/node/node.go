package node

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/amunchain/amunchain/internal/config"
	"github.com/amunchain/amunchain/pkg/chain"
	"github.com/amunchain/amunchain/pkg/gossip"
	"github.com/amunchain/amunchain/pkg/keystore"
	"github.com/amunchain/amunchain/pkg/peerscore"
	"github.com/amunchain/amunchain/pkg/registry"
	"github.com/amunchain/amunchain/pkg/replay"
	"github.com/amunchain/amunchain/pkg/state"
	"github.com/amunchain/amunchain/pkg/tide"
)

// envKeyPassphrase and envPBKDF2Iters govern validator-key-at-rest
// encryption. They stay out of the TOML config file so a passphrase
// never lands on disk next to the key it protects.
const (
	envKeyPassphrase = "AMUNCHAIN_KEY_PASSPHRASE"
	envPBKDF2Iters   = "AMUNCHAIN_PBKDF2_ITERS"
)

// Node owns every piece of mutable consensus state. Per spec §5 the
// Tide gadget and the state store are mutated from exactly one
// goroutine: the consensus loop started by Run.
type Node struct {
	cfg *config.Config
	log *logrus.Logger

	ks         *keystore.Keystore
	transport  *gossip.Transport
	gadget     *tide.Gadget
	store      *state.Store
	replayC    *replay.Cache
	scorer     *peerscore.Scorer
	validators *chain.ValidatorSet
	metrics    *Metrics

	allowlist map[string]struct{} // always non-empty; buildAllowlist fails closed otherwise

	proposedMu sync.Mutex
	proposed   map[uint64]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New opens the state store and validator keystore, joins the gossip
// topic, and — if p2p.peer_registry_path is set — loads and verifies the
// signed peer registry. It does not start the consensus loop.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Node, error) {
	passphrase := os.Getenv(envKeyPassphrase)
	iters := keystore.ClampIters(0)
	if raw := os.Getenv(envPBKDF2Iters); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", envPBKDF2Iters)
		}
		iters = keystore.ClampIters(n)
	}
	ks, err := keystore.LoadOrCreate(cfg.Node().DataDir, passphrase, iters)
	if err != nil {
		return nil, errors.Wrap(err, "loading validator keystore")
	}

	if len(cfg.Consensus().Validators) == 0 {
		return nil, errors.New("consensus.validators_hex must name at least one validator")
	}
	validators := chain.NewValidatorSet(cfg.Consensus().Validators)

	st, err := state.Open(cfg.Node().DataDir, log)
	if err != nil {
		return nil, errors.Wrap(err, "opening state store")
	}

	gadget := tide.New(tide.Config{
		Validators:   validators,
		Epoch:        1,
		RequireEpoch: cfg.Consensus().RequireEpoch,
	}, st.Height(), log)

	allowlist, err := buildAllowlist(cfg, log.WithField("component", "node"))
	if err != nil {
		return nil, err
	}

	identity, err := gossip.IdentityFromKeystore(ks)
	if err != nil {
		return nil, errors.Wrap(err, "adapting validator key to gossip identity")
	}
	transport, err := gossip.New(ctx, identity, gossip.Config{
		ListenAddrs:  cfg.P2P().ListenAddrs,
		Topic:        cfg.P2P().Topic,
		MaxWireBytes: gossip.DefaultMaxWireBytes,
	}, log)
	if err != nil {
		return nil, errors.Wrap(err, "starting gossip transport")
	}

	n := &Node{
		cfg:        cfg,
		log:        log,
		ks:         ks,
		transport:  transport,
		gadget:     gadget,
		store:      st,
		replayC:    replay.New(replay.DefaultCapacity, replay.DefaultTTLMs, nowMs),
		scorer:     peerscore.NewScorer(cfg.P2P().MaxMsgPerSec, cfg.P2P().MaxPeersPerIP),
		validators: validators,
		metrics:    newMetrics(),
		allowlist:  allowlist,
		proposed:   make(map[uint64]bool),
		done:       make(chan struct{}),
	}
	n.metrics.FinalizedHeight.Set(float64(st.Height()))
	return n, nil
}

// buildAllowlist unions the explicit p2p.allow_peers list with the signed
// registry at p2p.peer_registry_path, if configured. Per spec §4.7 this
// node always runs fail-closed: if the union ends up empty — no
// allow_peers, and either no registry configured or the configured one
// is unusable — startup fails with ErrEmptyAllowlist rather than
// defaulting to "allow everyone".
func buildAllowlist(cfg *config.Config, log *logrus.Entry) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for _, p := range cfg.P2P().AllowPeers {
		out[p] = struct{}{}
	}

	if path := cfg.P2P().PeerRegistryPath; path != "" {
		pinned, err := decodeHex(cfg.P2P().PeerRegistryPubkeyHex)
		if err != nil {
			return nil, errors.Wrap(err, "decoding peer_registry_pubkey_hex")
		}
		policy := registry.Policy{
			NowMs:        nowMs(),
			MinVersion:   cfg.P2P().PeerRegistryMinVersion,
			MaxAgeMs:     cfg.P2P().PeerRegistryMaxAgeMs,
			GraceMs:      cfg.P2P().PeerRegistryGraceMs,
			PinnedPubkey: pinned,
		}
		reg, err := registry.Load(path, policy)
		if err != nil {
			if cfg.P2P().PeerRegistryRequireFresh {
				return nil, errors.Wrap(err, "loading peer registry")
			}
			log.WithError(err).Warn("peer registry unusable, falling back to explicit allowlist")
		} else {
			for _, p := range reg.Peers {
				out[p] = struct{}{}
			}
		}
	}

	if len(out) == 0 {
		return nil, registry.ErrEmptyAllowlist
	}
	return out, nil
}

// Run starts the metrics server and the consensus loop, and blocks until
// ctx is cancelled or the gossip subscription ends.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	defer cancel()

	metricsErrCh := n.metrics.Serve(n.cfg.HTTP().ListenAddr, n.log.WithField("component", "metrics"))

	if id, err := peerIDOf(n.transport.Host().ID()); err != nil {
		n.log.WithError(err).Warn("could not render local peer id")
	} else {
		n.log.WithField("peer_id", id).Info("node started")
	}

	n.connectBootstrapPeers(ctx)
	n.maybePropose()

	frames := n.transport.Frames(ctx)
	go func() {
		defer close(n.done)
		n.consensusLoop(ctx, frames)
	}()

	select {
	case <-ctx.Done():
	case err := <-metricsErrCh:
		if err != nil {
			n.log.WithError(err).Error("metrics server failed")
		}
	}

	<-n.done
	return n.Stop(context.Background())
}

// Stop tears down the gossip transport, metrics server and state store.
func (n *Node) Stop(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}
	if err := n.metrics.Shutdown(ctx); err != nil {
		n.log.WithError(err).Warn("shutting down metrics server")
	}
	if err := n.transport.Close(); err != nil {
		n.log.WithError(err).Warn("closing gossip transport")
	}
	return n.store.Close()
}

func (n *Node) connectBootstrapPeers(ctx context.Context) {
	peers := n.cfg.P2P().Bootstrap
	if len(peers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, addr := range peers {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := connectMultiaddr(ctx, n.transport, addr); err != nil {
				n.log.WithField("peer", addr).WithError(err).Warn("failed to connect to bootstrap peer")
			}
		}()
	}
	wg.Wait()
}

func nowMs() uint64 { return uint64(time.Now().UnixMilli()) }
