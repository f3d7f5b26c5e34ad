// Command fullnoded is the core's CLI entrypoint: it wires the
// timechain, header-sync, block-sync, UTXO table, and UTXO index
// workers together and serves health/metrics endpoints, the way the
// teacher's root main.go wires its services together under
// servicemanager. Grounded on main.go's init()/gocore.Log startup,
// health-mux shape, and graceful-shutdown-on-signal pattern.
package main

import (
	"context"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // registers on http.DefaultServeMux, which the health server does not serve
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainforge/core/internal/blocksync"
	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/headersync"
	"github.com/chainforge/core/internal/notify"
	"github.com/chainforge/core/internal/settings"
	"github.com/chainforge/core/internal/sidecar"
	"github.com/chainforge/core/internal/timechain"
	"github.com/chainforge/core/internal/ulogger"
	"github.com/chainforge/core/internal/utxoindex"
	"github.com/chainforge/core/internal/utxotable"
	"github.com/ordishs/gocore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

const progname = "fullnoded"

var version string
var commit string

func init() {
	gocore.SetInfo(progname, version, commit)
	gocore.Log(progname)
}

func main() {
	app := &cli.App{
		Name:    progname,
		Usage:   "run a chainforge full node",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "start header-sync, block-sync, and UTXO storage workers",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listen", Value: ":8080", Usage: "address for /health and /metrics"},
					&cli.StringFlag{Name: "data-dir", Value: "./data/utxo", Usage: "UTXO table segment directory"},
				},
				Action: runNode,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		gocore.Log(progname).Fatalf("%s: %v", progname, err)
	}
}

// node bundles every long-lived worker runNode starts, so shutdown can
// stop them in the order they were started.
type node struct {
	log     ulogger.Logger
	tc      *timechain.Timechain
	status  *sidecar.StatusSidecar
	table   *utxotable.Table
	segs    *utxotable.SegmentStore
	index   *utxoindex.Index
	headers *headersync.Worker
	blocks  *blocksync.Worker
}

func runNode(c *cli.Context) error {
	log := ulogger.New(progname)
	cfg := settings.New()
	sink := notify.NewLoggingSink(log)

	genesis := chainparams.NewGenesisContext(chainparams.GenesisHeader, chainparams.GenesisHash)
	tc := timechain.New(genesis, int32(cfg.MaxSearchDepth), int32(cfg.MaxKeepDepth))
	status := sidecar.NewStatusSidecar()
	tc.RegisterSidecar(status)

	segs, err := utxotable.NewSegmentStore(c.String("data-dir"), cfg.SegmentRotateBytes)
	if err != nil {
		return err
	}
	table := utxotable.NewTable(segs, cfg.MutableWindow, log.New("utxotable"), sink)

	ages := utxoindex.AgesFromSettings(cfg.AgeDirBits, cfg.AgeMutable, cfg.AgeFanIn)
	index := utxoindex.New(cfg.ShardBits(), ages, log.New("utxoindex"))

	onPeerError := func(peerID string, err error) {
		log.Warnf("peer %s misbehaved: %v", peerID, err)
	}

	headerWorker := headersync.NewWorker(tc, log.New("headersync"), sink, onPeerError, nil)
	blockWorker := blocksync.NewWorker(tc, status, log.New("blocksync"), sink, onPeerError)

	n := &node{
		log:     log,
		tc:      tc,
		status:  status,
		table:   table,
		segs:    segs,
		index:   index,
		headers: headerWorker,
		blocks:  blockWorker,
	}

	go headerWorker.Run()
	go blockWorker.Run()
	go table.Flusher().Run()
	go index.Compactor().Run()

	srv := n.healthServer(c.String("listen"))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("health server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Infof("shutting down")
	n.shutdown(srv)
	return nil
}

func (n *node) healthServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/readiness", func(w http.ResponseWriter, r *http.Request) {
		_, tip := n.tc.HeaviestTip()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(tip.Hash.String()))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

func (n *node) shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)

	n.headers.Stop()
	n.blocks.Stop()
	n.table.Flusher().Stop()
	n.index.Compactor().Stop()
	_ = n.segs.Close()
}
