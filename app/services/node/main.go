package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/adamwoolhether/utxochain/app/services/node/handlers"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/genesis"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/storage/pebbledb"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/worker"
	"github.com/adamwoolhether/utxochain/foundation/events"
	"github.com/adamwoolhether/utxochain/foundation/logger"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Fprint(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Node struct {
			DBPath           string        `conf:"default:zblock/node.db"`
			GenesisFile      string        `conf:"default:zblock/genesis.yaml"`
			AccountsFolder   string        `conf:"default:zblock/accounts/"`
			AccountsPassword string        `conf:"mask"`
			SelectStrategy   string        `conf:"default:fee"`
			Producer         string        `conf:""`
			ProducerPassword string        `conf:"mask"`
			ProduceCycle     time.Duration `conf:"default:12s"`
			MaxTimeDrift     time.Duration `conf:"default:10s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}

		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	gen, err := genesis.Load(cfg.Node.GenesisFile)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	db, err := pebbledb.New(cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open database: %w", err)
	}
	defer db.Close()

	// Need to load the events package so node events can be streamed
	// to websocket clients.
	evts := events.New()
	defer evts.Shutdown()

	ev := func(v string, args ...any) {
		const websocketPrefix = "viewer:"

		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")

		evts.Send(websocketPrefix + s)
	}

	st, err := state.New(state.Config{
		Storage:        db,
		Genesis:        gen,
		SelectStrategy: cfg.Node.SelectStrategy,
		KDF:            signature.StandardKDF,
		MaxTimeDrift:   cfg.Node.MaxTimeDrift,
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	if err := importAccounts(log, st, cfg.Node.AccountsFolder, cfg.Node.AccountsPassword); err != nil {
		return err
	}

	producer, err := producerAddress(st, cfg.Node.Producer)
	if err != nil {
		return err
	}
	log.Infow("startup", "status", "block production", "producer", producer, "height", st.QueryHeight())

	// The worker registers itself with the state and produces blocks
	// as transactions arrive.
	worker.Run(st, worker.Config{
		Producer:  producer,
		Password:  cfg.Node.ProducerPassword,
		Cycle:     cfg.Node.ProduceCycle,
		EvHandler: ev,
	})

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	// Construct the mux for the private API calls.
	privateMux := handlers.PrivateMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
	})

	// Construct a server to service the requests against the mux.
	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      privateMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}

// importAccounts adds the keystores in the folder the node doesn't hold yet.
func importAccounts(log *zap.SugaredLogger, st *state.State, folder string, password string) error {
	disk, err := keystore.NewDisk(folder)
	if err != nil {
		return fmt.Errorf("unable to open accounts folder: %w", err)
	}

	iter, err := disk.ForEach()
	if err != nil {
		return fmt.Errorf("unable to read accounts folder: %w", err)
	}

	for ks, err := iter.Next(); !iter.Done(); ks, err = iter.Next() {
		if err != nil {
			return err
		}

		if st.Accounts().IsMine(ks.Address) {
			continue
		}

		if _, err := st.Accounts().Import(ks, password); err != nil {
			if errors.Is(err, account.ErrAccountAlreadyExists) {
				continue
			}
			return fmt.Errorf("import %s: %w", ks.Address, err)
		}

		log.Infow("startup", "status", "account imported", "address", ks.Address)
	}

	return nil
}

// producerAddress returns the configured producer, or the default account.
func producerAddress(st *state.State, producer string) (signature.Address, error) {
	if producer != "" {
		return signature.ParseAddress(producer)
	}

	acct, err := st.Accounts().Default()
	if err != nil {
		return signature.Address{}, fmt.Errorf("no producer account: %w", err)
	}

	return acct.Address, nil
}
