package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	offlinecache "github.com/offline-cache/offline-cache"
	"github.com/offline-cache/offline-cache/cache"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	configFilenameFlag string
	portFlag           int
	originFlag         string
	dbFilenameFlag     string
	cacheVersionFlag   string
	fetchTimeoutFlag   time.Duration
	skipWaitingFlag    bool
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&originFlag, "origin", "", "Origin URL to serve and cache (overrides config)")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Cache DB file name (use 'memory' for in-memory db)")
	flag.StringVar(&cacheVersionFlag, "cache-version", "", "Cache generation id (overrides config)")
	flag.DurationVar(&fetchTimeoutFlag, "fetch-timeout", 0, "Bound on every origin fetch (overrides config)")
	flag.BoolVar(&skipWaitingFlag, "skip-waiting", false, "Activate immediately after install")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

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
		With().Str("version", version).Logger()

	workerConfig := offlinecache.Config{
		Logger: &log.Logger,
	}

	var origin string

	if configFilenameFlag != "" {
		fileConfig, err := offlinecache.GetConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		origin = fileConfig.Origin
		workerConfig.Version = fileConfig.Version
		workerConfig.Manifest = fileConfig.Manifest
		workerConfig.OfflinePage = fileConfig.OfflinePage
		workerConfig.APIPrefix = fileConfig.APIPrefix
		workerConfig.FetchTimeout = time.Duration(fileConfig.FetchTimeoutSeconds) * time.Second
		workerConfig.SkipWaiting = fileConfig.SkipWaiting
		workerConfig.Quota = fileConfig.Quota
		workerConfig.Routes = fileConfig.Routes
		workerConfig.SyncMaxAttempts = fileConfig.SyncMaxAttempts
	}

	if originFlag != "" {
		origin = originFlag
	}
	if cacheVersionFlag != "" {
		workerConfig.Version = cacheVersionFlag
	}
	if fetchTimeoutFlag != 0 {
		workerConfig.FetchTimeout = fetchTimeoutFlag
	}
	if skipWaitingFlag {
		workerConfig.SkipWaiting = true
	}

	if origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}
	workerConfig.OriginURL = *originURL

	// set up sqlite memory provider
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = "file::memory:?cache=shared"
	}
	workerConfig.Store = cache.NewSQLiteCache(dbFilename)

	worker := offlinecache.CreateWorker(workerConfig)
	// a failed install leaves nothing in control: bail out
	if err := worker.Install(); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := worker.Activate(); err != nil {
		log.Fatal().Err(err).Msg("Activation failed")
	}

	r := chi.NewRouter()
	r.Handle("/*", worker)

	log.Info().Msgf("Serving port %v for origin %s", portFlag, workerConfig.OriginURL.String())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		panic(err)
	}
}
