package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/komodo-run/komodo/internal/envflag"
	"github.com/komodo-run/komodo/periphery/dispatch"
	"github.com/komodo-run/komodo/periphery/handlers"
	"github.com/komodo-run/komodo/periphery/ptymgr"
	"github.com/komodo-run/komodo/periphery/stackdeploy"
	"github.com/komodo-run/komodo/periphery/tlscert"
	"github.com/komodo-run/komodo/periphery/wsterminal"
	"github.com/rs/zerolog"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type stringFlagList []string

func (l *stringFlagList) String() string { return strings.Join(*l, ",") }
func (l *stringFlagList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "version" {
			fmt.Printf("komodo-periphery version %s\n", Version)
			os.Exit(0)
		}
	}

	cfg := loadConfig()

	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.StacksRoot, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("failed to create stacks root directory")
	}

	manager := ptymgr.New()
	pipeline := stackdeploy.New(nil)

	disp := dispatch.New(cfg.Passkey, cfg.Allowlist)
	handlers.Register(disp, Version, cfg.StacksRoot, pipeline)

	root := chi.NewRouter()
	root.Mount("/", disp.Router())
	root.Handle("/terminal", &wsterminal.Handler{Passkey: cfg.Passkey, Manager: manager})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
		manager.CleanUp()
	}()

	logger.Info().Int("port", cfg.Port).Bool("ssl", cfg.SSLEnabled).Msg("starting komodo-periphery")

	var err error
	if cfg.SSLEnabled {
		cert, certErr := tlscert.EnsureCerts(cfg.SSLCertFile, cfg.SSLKeyFile)
		if certErr != nil {
			logger.Fatal().Err(certErr).Msg("failed to prepare TLS certificate")
		}
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("periphery server terminated with error")
	}

	logger.Info().Msg("komodo-periphery stopped")
}

type config struct {
	Port        int
	Passkey     string
	StacksRoot  string
	SSLEnabled  bool
	SSLCertFile string
	SSLKeyFile  string
	Allowlist   []net.IP
	LogLevel    zerolog.Level
}

func loadConfig() config {
	envPort := envflag.GetenvTrim("PERIPHERY_PORT")
	envPasskey := envflag.GetenvTrim("PERIPHERY_PASSKEY")
	envStacksRoot := envflag.GetenvTrim("PERIPHERY_STACKS_ROOT")
	envSSLEnabled := envflag.GetenvTrim("PERIPHERY_SSL_ENABLED")
	envSSLCertFile := envflag.GetenvTrim("PERIPHERY_SSL_CERT_FILE")
	envSSLKeyFile := envflag.GetenvTrim("PERIPHERY_SSL_KEY_FILE")
	envAllowedIPs := envflag.GetenvTrim("PERIPHERY_ALLOWED_IPS")
	envLogLevel := envflag.GetenvTrim("LOG_LEVEL")

	defaultPort := 8120
	if envPort != "" {
		fmt.Sscanf(envPort, "%d", &defaultPort)
	}

	portFlag := flag.Int("port", defaultPort, "Port to listen on")
	passkeyFlag := flag.String("passkey", envPasskey, "Shared passkey Core must present")
	stacksRootFlag := flag.String("stacks-root", orDefault(envStacksRoot, "/etc/komodo/stacks"), "Root directory for materialized stack working trees")
	sslEnabledFlag := flag.Bool("ssl-enabled", envflag.ParseBool(envSSLEnabled), "Serve over HTTPS with a self-signed certificate")
	sslCertFlag := flag.String("ssl-cert-file", orDefault(envSSLCertFile, "/etc/komodo/ssl/periphery.crt"), "TLS certificate path (generated if missing)")
	sslKeyFlag := flag.String("ssl-key-file", orDefault(envSSLKeyFile, "/etc/komodo/ssl/periphery.key"), "TLS key path (generated if missing)")
	logLevelFlag := flag.String("log-level", orDefault(envLogLevel, "info"), "Log level: debug, info, warn, error")
	var allowedIPFlags stringFlagList
	flag.Var(&allowedIPFlags, "allowed-ip", "Restrict callers to this source IP. Repeat for multiple. Empty means unrestricted.")

	flag.Parse()

	if *passkeyFlag == "" {
		fmt.Fprintln(os.Stderr, "error: PERIPHERY_PASSKEY or --passkey must be provided")
		os.Exit(1)
	}

	allowlist := make([]net.IP, 0)
	for _, raw := range allowedIPFlags {
		if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
			allowlist = append(allowlist, ip)
		}
	}
	if envAllowedIPs != "" {
		for _, raw := range strings.Split(envAllowedIPs, ",") {
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				allowlist = append(allowlist, ip)
			}
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(*logLevelFlag))
	if err != nil {
		level = zerolog.InfoLevel
	}

	return config{
		Port:        *portFlag,
		Passkey:     *passkeyFlag,
		StacksRoot:  *stacksRootFlag,
		SSLEnabled:  *sslEnabledFlag,
		SSLCertFile: *sslCertFlag,
		SSLKeyFile:  *sslKeyFlag,
		Allowlist:   allowlist,
		LogLevel:    level,
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
