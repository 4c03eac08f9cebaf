package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	offlinecache "github.com/offline-cache/offline-cache"
	"github.com/offline-cache/offline-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	originFlag         string
	versionFlag        string
	namespaceFlag      string
	portFlag           int
	providerFlag       string
	dbFlag             string
	logFilenameFlag    string
	verbosityTraceFlag bool

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to front (overrides config)")
	flag.StringVar(&versionFlag, "version", "", "Deployment version (overrides config)")
	flag.StringVar(&namespaceFlag, "namespace", "", "Cache name namespace (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Cache provider to use (sqlite, leveldb, memory)")
	flag.StringVar(&dbFlag, "db", "cache.db", "Cache DB file or directory (use 'memory' for in-memory sqlite)")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("build", version).Logger()

	var config Config
	if configFilenameFlag != "" {
		var err error
		config, err = getConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
	}

	// flags override config
	if originFlag != "" {
		config.Origin = originFlag
	}
	if versionFlag != "" {
		config.Version = versionFlag
	}
	if namespaceFlag != "" {
		config.Namespace = namespaceFlag
	}
	if config.Port == 0 {
		config.Port = portFlag
	}
	if config.Provider == "" {
		config.Provider = providerFlag
	}
	if config.DB == "" {
		config.DB = dbFlag
	}

	if config.Origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	if config.Version == "" {
		log.Fatal().Msg("Please specify deployment version")
	}

	originURL, err := url.Parse(config.Origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	var provider cache.CacheProvider
	switch config.Provider {
	case "sqlite":
		dbFilename := config.DB
		if dbFilename == "memory" {
			dbFilename = ""
		}
		provider, err = cache.NewSQLiteProvider(dbFilename)
	case "leveldb":
		provider, err = cache.NewLevelDBProvider(config.DB)
	case "memory":
		provider = cache.NewMemProvider()
	default:
		log.Fatal().Msgf("Unsupported cache provider: %s", config.Provider)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open cache provider")
	}

	agent, err := offlinecache.New(offlinecache.Config{
		Version:       config.Version,
		Namespace:     config.Namespace,
		Storage:       provider,
		OriginURL:     *originURL,
		ShellAssets:   config.Shell.Assets,
		ShellDocument: config.Shell.Document,
		Logger:        &log.Logger,
		SkipWaiting:   true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Could not create agent")
	}

	reg := offlinecache.NewRegistration(&log.Logger)
	if err := reg.Register(context.Background(), agent); err != nil {
		log.Fatal().Err(err).Msg("Could not register agent")
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/_agent/message", messageHandler(reg))
	r.Get("/_agent/version", versionHandler(reg))
	r.Handle("/*", reg)

	addr := fmt.Sprintf(":%d", config.Port)
	log.Info().Str("addr", addr).Str("origin", config.Origin).Msg("Listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func messageHandler(reg *offlinecache.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg offlinecache.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "Invalid message", http.StatusBadRequest)
			return
		}
		reg.HandleMessage(r.Context(), msg)
		w.WriteHeader(http.StatusAccepted)
	}
}

func versionHandler(reg *offlinecache.Registration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent := reg.Active()
		if agent == nil {
			http.Error(w, "No active agent", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, agent.Version())
	}
}
