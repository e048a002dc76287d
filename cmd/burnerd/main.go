package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/burnerhq/burnerd/cmd/burnerd/config"
	"github.com/burnerhq/burnerd/internal/balances"
	"github.com/burnerhq/burnerd/internal/bus"
	"github.com/burnerhq/burnerd/internal/constants"
	"github.com/burnerhq/burnerd/internal/ens"
	"github.com/burnerhq/burnerd/internal/history"
	"github.com/burnerhq/burnerd/internal/httpapi"
	"github.com/burnerhq/burnerd/internal/indexer"
	"github.com/burnerhq/burnerd/internal/keystore"
	"github.com/burnerhq/burnerd/internal/pin"
	"github.com/burnerhq/burnerd/internal/securefile"
	"github.com/burnerhq/burnerd/internal/session"
	"github.com/burnerhq/burnerd/internal/transfer"
	"github.com/burnerhq/burnerd/internal/validator"
	"github.com/burnerhq/burnerd/internal/wallets"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	log.Infow("burnerd",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to parse config", "error", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		log.Fatalw("invalid chain/token configuration", "error", err)
	}

	keystorePath, err := securefile.ConfigPath(constants.KeystoreFile)
	if err != nil {
		log.Fatalw("cannot resolve keystore path", "error", err)
	}

	// One secret does both jobs: it decrypts the keystore and unlocks the
	// PIN gate for this run.
	pinValue, err := promptPIN(keystorePath)
	if err != nil {
		log.Fatalw("pin entry failed", "error", err)
	}

	ks, err := keystore.OpenFile(keystorePath, []byte(pinValue))
	if err != nil {
		if errors.Is(err, securefile.ErrInvalidPasswordOrCorrupt) {
			log.Fatalw("wrong pin or corrupt keystore", "path", keystorePath)
		}
		log.Fatalw("cannot open keystore", "path", keystorePath, "error", err)
	}

	gate := pin.NewGate(ks)
	set, err := gate.IsSet()
	if err != nil {
		log.Fatalw("cannot read pin state", "error", err)
	}
	if !set {
		err = gate.Set(pinValue)
	} else {
		err = gate.Verify(pinValue)
	}
	if err != nil {
		log.Fatalw("pin rejected", "error", err)
	}

	indexClient := indexer.NewClient(cfg.Services.IndexerURL)
	ensClient := ens.NewClient(cfg.Services.EnsURL)
	passkeys := validator.NewPasskeyClient(cfg.Services.PasskeyURL)

	events := bus.New()
	balanceCache := balances.New(reg, indexClient, events, log)
	historyCache := history.New(reg, indexClient, events, log)

	sessions := session.NewBuilder(reg, log)
	store, err := wallets.Open(ks, sessions, passkeys, ensClient, balanceCache, log)
	if err != nil {
		log.Fatalw("cannot load wallets", "error", err)
	}

	resolver := validator.NewResolver(store, passkeys)
	engine := transfer.NewEngine(reg, resolver, sessions, balanceCache, log)

	go balanceCache.Run(ctx, store.Addresses)
	go historyCache.Run(ctx, store.Addresses)

	gin.SetMode(gin.ReleaseMode)
	handler := httpapi.NewHandler(reg, store, engine, balanceCache, historyCache, events, gate, log)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: httpapi.NewRouter(handler),
	}

	go func() {
		log.Infow("local api listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("http server shutdown failed", "error", err)
	} else {
		log.Infow("http server gracefully stopped")
	}
}

// promptPIN reads the PIN without echo. A missing keystore file means first
// run: ask twice.
func promptPIN(keystorePath string) (string, error) {
	_, statErr := os.Stat(keystorePath)
	firstRun := os.IsNotExist(statErr)

	fmt.Fprint(os.Stderr, "PIN: ")
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}

	if firstRun {
		fmt.Fprint(os.Stderr, "Repeat PIN: ")
		second, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		if string(first) != string(second) {
			return "", errors.New("pins do not match")
		}
	}
	return string(first), nil
}
