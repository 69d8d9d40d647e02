package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"image-hunter/internal/engine"
	"image-hunter/internal/options"
	"image-hunter/internal/source"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()

	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_SET_VAR", "custom")
	t.Setenv("TEST_EMPTY_VAR", "")

	tests := []struct {
		key  string
		want string
	}{
		{"TEST_SET_VAR", "custom"},
		{"TEST_EMPTY_VAR", "default"},
		{"TEST_NEVER_SET_VAR", "default"},
	}

	for _, tt := range tests {
		if got := getEnv(tt.key, "default"); got != tt.want {
			t.Errorf("getEnv(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"0", true, false},
		{"maybe", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)
			if got := getEnvBool("TEST_BOOL", tt.def); got != tt.want {
				t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 7},
		{"12", 12},
		{"0", 7},
		{"-3", 7},
		{"lots", 7},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)
			if got := getEnvInt("TEST_INT", 7); got != tt.want {
				t.Errorf("getEnvInt(%q) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"5s", 5 * time.Second},
		{"1h30m", 90 * time.Minute},
		{"-1s", time.Minute},
		{"soon", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", time.Minute); got != tt.want {
				t.Errorf("getEnvDuration(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestDefaultOptions(t *testing.T) {
	tests := []struct {
		level   string
		format  string
		wantErr bool
		want    options.Format
	}{
		{"medium", "jpeg", false, options.FormatJPEG},
		{"high", "webp", false, options.FormatWebP},
		{"LOW", "png", false, options.FormatPNG},
		{"extreme", "jpeg", true, 0},
		{"medium", "gif", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			got, err := defaultOptions(tt.level, tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("defaultOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Variant() != options.VariantFuzzy {
				t.Errorf("Variant() = %v, want Fuzzy", got.Variant())
			}
			if got.Format() != tt.want {
				t.Errorf("Format() = %v, want %v", got.Format(), tt.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIA_DIR", filepath.Join(dir, "media"))
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("PORT", "9999")
	t.Setenv("DISPLAY_WIDTH", "800")
	t.Setenv("DISPLAY_HEIGHT", "600")
	t.Setenv("DEFAULT_LEVEL", "low")
	t.Setenv("DEFAULT_FORMAT", "png")
	t.Setenv("MAX_ATTEMPTS", "")
	t.Setenv("FETCH_READ_TIMEOUT", "3s")
	t.Setenv("FETCH_CONNECT_TIMEOUT", "")
	t.Setenv("FETCH_WRITE_TIMEOUT", "")
	t.Setenv("INDEX_INTERVAL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Port != "9999" {
		t.Errorf("Port = %q, want 9999", cfg.Port)
	}
	if cfg.Display != (options.Display{Width: 800, Height: 600}) {
		t.Errorf("Display = %+v", cfg.Display)
	}
	if cfg.Defaults.Level() != options.LevelLow || cfg.Defaults.Format() != options.FormatPNG {
		t.Errorf("Defaults = %s", cfg.Defaults)
	}
	if cfg.MaxAttempts != engine.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, engine.DefaultMaxAttempts)
	}
	if cfg.Fetch.ReadTimeout != 3*time.Second {
		t.Errorf("Fetch.ReadTimeout = %v, want 3s", cfg.Fetch.ReadTimeout)
	}
	if cfg.Fetch.ConnectTimeout != source.DefaultConnectTimeout {
		t.Errorf("Fetch.ConnectTimeout = %v", cfg.Fetch.ConnectTimeout)
	}
	if cfg.IndexInterval != 30*time.Minute {
		t.Errorf("IndexInterval = %v, want 30m", cfg.IndexInterval)
	}

	wantSpool := filepath.Join(dir, "cache", "spool")
	if cfg.SpoolDir != wantSpool || cfg.Fetch.SpoolDir != wantSpool {
		t.Errorf("SpoolDir = %q, Fetch.SpoolDir = %q, want %q", cfg.SpoolDir, cfg.Fetch.SpoolDir, wantSpool)
	}
	if cfg.DatabasePath != filepath.Join(dir, "db", "media.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
	for _, d := range []string{cfg.MediaDir, cfg.SpoolDir, cfg.DatabaseDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}

func TestLoadConfigInvalidDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEDIA_DIR", filepath.Join(dir, "media"))
	t.Setenv("CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("DATABASE_DIR", filepath.Join(dir, "db"))
	t.Setenv("DEFAULT_FORMAT", "bmp")

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() error = nil for unknown DEFAULT_FORMAT")
	}
}

func TestGetRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/hunt", "api/hunt"},
		{"/api/hunt/{tag}", "api/hunt"},
		{"/api/media/{id}", "api/media"},
		{"/health", "health"},
		{"/", ""},
	}

	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	r := mux.NewRouter()
	noop := func(_ http.ResponseWriter, _ *http.Request) {}
	r.HandleFunc("/api/hunt", noop).Methods(http.MethodGet).Name("hunt")
	r.HandleFunc("/api/hunt/{tag}", noop).Methods(http.MethodDelete)
	r.HandleFunc("/livez", noop)

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	want := []RouteInfo{
		{Method: http.MethodGet, Path: "/api/hunt", Name: "hunt"},
		{Method: http.MethodDelete, Path: "/api/hunt/{tag}"},
		{Method: "*", Path: "/livez"},
	}
	if len(routes) != len(want) {
		t.Fatalf("GetRoutes() returned %d routes, want %d", len(routes), len(want))
	}
	for i := range want {
		if routes[i] != want[i] {
			t.Errorf("route %d = %+v, want %+v", i, routes[i], want[i])
		}
	}
}
