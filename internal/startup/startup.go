package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"image-hunter/internal/engine"
	"image-hunter/internal/filesystem"
	"image-hunter/internal/logging"
	"image-hunter/internal/memory"
	"image-hunter/internal/options"
	"image-hunter/internal/source"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

const sectionRule = "------------------------------------------------------------"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaDir        string
	CacheDir        string
	DatabaseDir     string
	Port            string
	IndexInterval   time.Duration
	LogHealthChecks bool
	MetricsEnabled  bool
	VipsEnabled     bool

	// Hunting
	Display     options.Display
	Defaults    options.Options
	MaxAttempts int
	Fetch       source.RemoteConfig

	// Derived paths
	DatabasePath string
	SpoolDir     string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logSection("CONFIGURATION")

	mediaDir := getEnv("MEDIA_DIR", "/media")
	cacheDir := getEnv("CACHE_DIR", "/cache")
	databaseDir := getEnv("DATABASE_DIR", "/database")
	port := getEnv("PORT", "8080")
	levelStr := getEnv("DEFAULT_LEVEL", "medium")
	formatStr := getEnv("DEFAULT_FORMAT", "jpeg")
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	vipsEnabled := getEnvBool("VIPS_ENABLED", true)

	config := &Config{
		Port:            port,
		IndexInterval:   getEnvDuration("INDEX_INTERVAL", 30*time.Minute),
		LogHealthChecks: logHealthChecks,
		MetricsEnabled:  metricsEnabled,
		VipsEnabled:     vipsEnabled,
		Display: options.Display{
			Width:  getEnvInt("DISPLAY_WIDTH", 1920),
			Height: getEnvInt("DISPLAY_HEIGHT", 1080),
		},
		MaxAttempts: getEnvInt("MAX_ATTEMPTS", engine.DefaultMaxAttempts),
		Fetch: source.RemoteConfig{
			ConnectTimeout: getEnvDuration("FETCH_CONNECT_TIMEOUT", source.DefaultConnectTimeout),
			ReadTimeout:    getEnvDuration("FETCH_READ_TIMEOUT", source.DefaultReadTimeout),
			WriteTimeout:   getEnvDuration("FETCH_WRITE_TIMEOUT", source.DefaultWriteTimeout),
		},
	}

	defaults, err := defaultOptions(levelStr, formatStr)
	if err != nil {
		return nil, err
	}
	config.Defaults = defaults

	logging.Info("  MEDIA_DIR:              %s", mediaDir)
	logging.Info("  CACHE_DIR:              %s", cacheDir)
	logging.Info("  DATABASE_DIR:           %s", databaseDir)
	logging.Info("  PORT:                   %s", port)
	logging.Info("  METRICS_ENABLED:        %v", metricsEnabled)
	logging.Info("  VIPS_ENABLED:           %v", vipsEnabled)
	logging.Info("  INDEX_INTERVAL:         %v", config.IndexInterval)
	logging.Info("  DISPLAY:                %dx%d", config.Display.Width, config.Display.Height)
	logging.Info("  DEFAULT_OPTIONS:        %s", config.Defaults)
	logging.Info("  MAX_ATTEMPTS:           %d", config.MaxAttempts)
	logging.Info("  FETCH_CONNECT_TIMEOUT:  %v", config.Fetch.ConnectTimeout)
	logging.Info("  FETCH_READ_TIMEOUT:     %v", config.Fetch.ReadTimeout)
	logging.Info("  FETCH_WRITE_TIMEOUT:    %v", config.Fetch.WriteTimeout)
	logging.Info("  LOG_HEALTH_CHECKS:      %v", logHealthChecks)
	logging.Info("  LOG_LEVEL:              %s", logging.GetLevel())

	// Resolve paths
	logSection("DIRECTORY SETUP")

	if config.MediaDir, err = absPath(mediaDir, "media"); err != nil {
		return nil, err
	}
	if config.CacheDir, err = absPath(cacheDir, "cache"); err != nil {
		return nil, err
	}
	if config.DatabaseDir, err = absPath(databaseDir, "database"); err != nil {
		return nil, err
	}
	config.DatabasePath = filepath.Join(config.DatabaseDir, "media.db")
	config.SpoolDir = filepath.Join(config.CacheDir, "spool")
	config.Fetch.SpoolDir = config.SpoolDir

	// Check/create media directory (warning only)
	if err := ensureDirectory(config.MediaDir, "media"); err != nil {
		logging.Warn("  Media directory issue: %v", err)
	}

	logging.Debug("  Testing database directory write access...")
	if err := filesystem.EnsureWritableDir(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	// Remote sources cannot be fetched without a spool
	logging.Debug("  Testing spool directory write access...")
	if err := filesystem.EnsureWritableDir(config.SpoolDir); err != nil {
		return nil, fmt.Errorf("spool directory error: %w", err)
	}
	logging.Info("  [OK] Spool directory is writable: %s", config.SpoolDir)

	return config, nil
}

// defaultOptions builds the process-wide Fuzzy defaults.
func defaultOptions(level, format string) (options.Options, error) {
	l, err := options.ParseLevel(level)
	if err != nil {
		return options.Options{}, fmt.Errorf("DEFAULT_LEVEL: %w", err)
	}
	f, err := options.ParseFormat(format)
	if err != nil {
		return options.Options{}, fmt.Errorf("DEFAULT_FORMAT: %w", err)
	}
	return options.NewFuzzy().Level(l).Format(f).Build()
}

func absPath(path, name string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s directory path: %w", name, err)
	}
	logging.Info("  %s directory (absolute): %s", strings.ToUpper(name[:1])+name[1:], abs)
	return abs, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogMemoryInit logs the memory limit and the decode budget derived from it.
func LogMemoryInit(result memory.ConfigResult, budget *memory.Budget) {
	logSection("MEMORY CONFIGURATION")
	logging.Info("  Limit source:    %s", result.Source)
	logging.Info("  Memory limit:    %s", memory.FormatBytes(budget.Limit()))
	logging.Info("  Decode budget:   %s", memory.FormatBytes(budget.Available()))
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logSection("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogCodecInit logs which raster backend serves decodes.
func LogCodecInit(name string, vipsRequested bool) {
	logSection("CODEC INITIALIZATION")
	if vipsRequested && name != "vips" {
		logging.Warn("  libvips unavailable, falling back to the standard decoders")
	}
	logging.Info("  [OK] Codec: %s", name)
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(interval time.Duration) {
	logSection("INDEXER INITIALIZATION")
	logging.Info("  Index interval: %v", interval)
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// LogDispatcherStarted logs the hunt dispatcher configuration.
func LogDispatcherStarted(spoolDir string, maxAttempts int) {
	logSection("DISPATCHER INITIALIZATION")
	logging.Info("  Spool directory: %s", spoolDir)
	logging.Info("  Max alloc retries: %d", maxAttempts)
	logging.Info("  [OK] Dispatcher started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes when debug logging is on.
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logSection("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logHealthChecks {
		logging.Info("  Health check logging: ON")
	} else {
		logging.Info("  Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logSection("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Hunt:          http://0.0.0.0:%s/api/hunt?src=...", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       %s", enabledString(false))
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("%s", sectionRule)
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logSection("SHUTDOWN INITIATED (received %s)", signal)
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
    _                              __                __
   (_)___ ___  ____ _____ ____    / /_  __  ______  / /____  _____
  / / __ '__ \/ __ '/ __ '/ _ \  / __ \/ / / / __ \/ __/ _ \/ ___/
 / / / / / / / /_/ / /_/ /  __/ / / / / /_/ / / / / /_/  __/ /
/_/_/ /_/ /_/\__,_/\__, /\___/ /_/ /_/\__,_/_/ /_/\__/\___/_/
                  /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	logSection("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid positive integer for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// logSection prints a section header. A blank line separates it from the
// previous section.
func logSection(format string, args ...any) {
	logging.Info("")
	logging.Info("%s", sectionRule)
	logging.Info(format, args...)
	logging.Info("%s", sectionRule)
}
