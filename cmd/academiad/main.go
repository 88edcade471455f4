package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"academia-backend/lib/browser"
	"academia-backend/lib/configutil"
	configsqlite "academia-backend/lib/configutil/sqlite"
	"academia-backend/lib/restyutil"
	"academia-backend/lib/serviceutil"
	"academia-backend/lib/telemetry"
	"academia-backend/lib/token"
	"academia-backend/services/academia"
	"academia-backend/services/academia/store"
	storedb "academia-backend/services/academia/store/db"
)

type Config struct {
	Port      int    `json:"port"`
	JwtSecret string `json:"jwt_secret"`
	// Verbose enables debug logging and http message dumps
	Verbose bool `json:"verbose"`

	Database configsqlite.Struct `json:"database"`
	// Supabase takes over from the embedded database when its url is set
	Supabase store.SupabaseConfig `json:"supabase"`
	Browser  browser.Options      `json:"browser"`
	// FallbackDir receives local snapshot dumps when the store is down
	FallbackDir string `json:"fallback_dir"`
}

func openStore(config Config, output restyutil.InstrumentOutput) (store.Store, error) {
	if config.Supabase.Url != "" {
		return store.NewSupabase(config.Supabase, output), nil
	}
	db, err := config.Database.OpenDB(storedb.Schema)
	if err != nil {
		return nil, err
	}
	return store.NewSqlite(db), nil
}

func main() {
	ctx := serviceutil.SignalContext()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.JwtSecret == "" {
		serviceutil.Fatal("config check", fmt.Errorf("jwt_secret must be set"))
	}
	if config.Port == 0 {
		config.Port = 8080
	}

	t, err := telemetry.SetupFromEnv(ctx, "academiad")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InitSlog(config.Verbose)
	telemetry.InstrumentPerfStats(ctx)

	var output restyutil.InstrumentOutput
	if config.Verbose {
		output = restyutil.NewFilesystemOutput(".dev/resty/academiad")
	}

	backend, err := openStore(config, output)
	if err != nil {
		serviceutil.Fatal("failed to open store", err)
	}
	st := store.NewReliable(backend, config.FallbackDir)

	issuer := token.NewIssuer(config.JwtSecret)
	service := academia.NewService(st, issuer, config.Browser, output)
	go service.Jobs().SweepDaemon(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", config.Port),
		Handler:           academia.NewServer(service, issuer).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		serviceutil.Fatal("failed to serve http", err)
	}
}
