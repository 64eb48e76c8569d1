package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/sprintdeck/sprintdeck-auth/clients"
	"github.com/sprintdeck/sprintdeck-auth/identity"
	"github.com/sprintdeck/sprintdeck-auth/internal/config"
	"github.com/sprintdeck/sprintdeck-auth/pending"
	"github.com/sprintdeck/sprintdeck-auth/pending/repopg"
	"github.com/sprintdeck/sprintdeck-auth/server"
)

const sweepInterval = time.Minute

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx := context.Background()

	requests, cleanup, err := buildRequestRepo(ctx, c)
	if err != nil {
		return fmt.Errorf("buildRequestRepo: %w", err)
	}
	defer cleanup()

	provider, err := identity.NewOIDCProvider(ctx,
		c.GetIdentityIssuerURL(),
		c.GetIdentityClientID(),
		c.GetIdentityClientSecret(),
		c.GetIdentitySessionEndpoint())
	if err != nil {
		return fmt.Errorf("identity.NewOIDCProvider: %w", err)
	}

	registry := clients.NewRegistryFromIDs(c.GetAllowedClientIDs())

	srv, err := server.New(c, requests, provider, registry)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	stopSweeper := startSweeper(srv)
	defer stopSweeper()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildRequestRepo picks the Postgres store when DATABASE_URL is set and
// falls back to the in-memory store for local development.
func buildRequestRepo(ctx context.Context, c config.Config) (pending.Repo, func(), error) {
	databaseURL := c.GetDatabaseURL()
	if databaseURL == "" {
		log.Printf("DATABASE_URL not set, using in-memory request store\n")
		return pending.NewInMemoryRepo(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	repo := repopg.New(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("repopg.Migrate: %w", err)
	}

	return repo, pool.Close, nil
}

// startSweeper runs the expired-row janitor until the returned stop
// function is called.
func startSweeper(srv *server.Server) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := srv.Flow().SweepExpired(ctx); err != nil {
					log.Printf("Sweep of expired authorization requests failed: %v\n", err)
				} else if removed > 0 {
					log.Printf("Swept %d expired authorization requests\n", removed)
				}
			}
		}
	}()
	return cancel
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
