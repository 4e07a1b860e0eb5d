package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	tmtypes "github.com/tendermint/tendermint/types"
	"go.uber.org/multierr"

	"github.com/rollkit/poe/block"
	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/events"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/indexer"
	"github.com/rollkit/poe/state"
	"github.com/rollkit/poe/store"
)

// prefix used in KV store to separate the claim index from chain and application data
const indexerPrefix = "/index"

// MetricsProvider returns block manager and executor metrics for the given chain.
type MetricsProvider func(chainID string) (*block.Metrics, *state.Metrics)

// DefaultMetricsProvider returns Prometheus metrics if enabled in cfg, and no-op metrics otherwise.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func(chainID string) (*block.Metrics, *state.Metrics) {
		if cfg != nil && cfg.Prometheus {
			return block.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				state.PrometheusMetrics(cfg.Namespace, "chain_id", chainID)
		}
		return block.NopMetrics(), state.NopMetrics()
	}
}

// Node produces blocks of the claim registry and gives access to its state.
type Node struct {
	service.BaseService
	eventBus *events.EventBus

	genesis  *tmtypes.GenesisDoc
	appState genesis.AppState

	conf config.NodeConfig

	Store        store.Store
	Executor     *state.Executor
	blockManager *block.Manager

	ClaimIndex     *indexer.ClaimIndex
	indexerService *indexer.IndexerService

	prometheusSrv *http.Server

	errCh chan error
	wg    sync.WaitGroup

	// keep context here only because of API compatibility
	// - it's used in `OnStart` (defined in service.Service interface)
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNode creates new poe node. An empty RootDir and DBPath keep all data in memory.
func NewNode(
	ctx context.Context,
	conf config.NodeConfig,
	genDoc *tmtypes.GenesisDoc,
	metricsProvider MetricsProvider,
	logger log.Logger,
) (*Node, error) {
	appState, err := genesis.AppStateFromGenesisDoc(genDoc)
	if err != nil {
		return nil, err
	}
	if metricsProvider == nil {
		metricsProvider = DefaultMetricsProvider(conf.Instrumentation)
	}
	blockMetrics, stateMetrics := metricsProvider(genDoc.ChainID)

	eventBus := events.NewEventBus()
	eventBus.SetLogger(logger.With("module", "events"))
	if err := eventBus.Start(); err != nil {
		return nil, err
	}

	var baseKV store.KV
	if conf.RootDir == "" && conf.DBPath == "" { // this is used for testing
		logger.Info("WARNING: working in in-memory mode")
		baseKV, err = store.NewDefaultInMemoryKVStore()
	} else {
		baseKV, err = store.NewDefaultKVStore(conf.RootDir, conf.DBPath, "poe")
	}
	if err != nil {
		return nil, multierr.Append(err, eventBus.Stop())
	}

	s, err := store.New(ctx, baseKV)
	if err != nil {
		return nil, multierr.Combine(err, baseKV.Close(), eventBus.Stop())
	}

	exec, err := state.NewExecutor(baseKV, genDoc.ChainID, appState, conf.MempoolSize, eventBus, stateMetrics, logger.With("module", "state"))
	if err != nil {
		return nil, multierr.Combine(err, s.Close(), eventBus.Stop())
	}

	blockManager, err := block.NewManager(ctx, conf.BlockManagerConfig, genDoc, s, exec, eventBus, logger.With("module", "BlockManager"), blockMetrics)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("error while initializing BlockManager: %w", err), s.Close(), eventBus.Stop())
	}

	claimIndex := indexer.NewClaimIndex(store.NewPrefixKV(baseKV, indexerPrefix))
	indexerService := indexer.NewIndexerService(claimIndex, store.NewClaimStore(baseKV), eventBus)
	indexerService.SetLogger(logger.With("module", "indexer"))

	ctx, cancel := context.WithCancel(ctx)
	node := &Node{
		eventBus:       eventBus,
		genesis:        genDoc,
		appState:       appState,
		conf:           conf,
		Store:          s,
		Executor:       exec,
		blockManager:   blockManager,
		ClaimIndex:     claimIndex,
		indexerService: indexerService,
		errCh:          make(chan error, 1),
		ctx:            ctx,
		cancel:         cancel,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	return node, nil
}

// OnStart is a part of Service interface.
func (n *Node) OnStart() error {
	if err := n.indexerService.Start(); err != nil {
		return fmt.Errorf("error while starting indexer service: %w", err)
	}
	if n.conf.Instrumentation != nil && n.conf.Instrumentation.IsPrometheusEnabled() {
		n.prometheusSrv = n.startPrometheusServer()
	}
	n.Logger.Info("starting block production", "block time", n.conf.BlockTime, "lazy", n.conf.LazyAggregator)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.blockManager.AggregationLoop(n.ctx, n.errCh)
	}()
	return nil
}

// OnStop is a part of Service interface.
func (n *Node) OnStop() {
	n.Logger.Info("halting node...")
	n.cancel()
	n.wg.Wait()

	err := n.indexerService.Stop()
	if n.prometheusSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = multierr.Append(err, n.prometheusSrv.Shutdown(ctx))
		cancel()
	}
	err = multierr.Append(err, n.eventBus.Stop())
	err = multierr.Append(err, n.Store.Close())
	if err != nil {
		n.Logger.Error("errors while stopping node:", "errors", err)
	}
}

// startPrometheusServer starts a Prometheus HTTP server, listening for metrics
// collectors on the configured address.
func (n *Node) startPrometheusServer() *http.Server {
	cfg := n.conf.Instrumentation
	srv := &http.Server{
		Addr: cfg.PrometheusListenAddr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: cfg.MaxOpenConnections},
			),
		),
		ReadHeaderTimeout: 2 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.Logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// Errors reports fatal block production errors.
func (n *Node) Errors() <-chan error {
	return n.errCh
}

// GetGenesis returns entire genesis doc.
func (n *Node) GetGenesis() *tmtypes.GenesisDoc {
	return n.genesis
}

// AppState returns the application part of the genesis doc.
func (n *Node) AppState() genesis.AppState {
	return n.appState
}

// EventBus gives access to Node's event bus.
func (n *Node) EventBus() *events.EventBus {
	return n.eventBus
}

// BlockManager gives access to the block producer.
func (n *Node) BlockManager() *block.Manager {
	return n.blockManager
}

// Config returns the node configuration.
func (n *Node) Config() config.NodeConfig {
	return n.conf
}
