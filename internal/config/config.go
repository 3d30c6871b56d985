package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lwa-query-web/internal/lwa"
)

// Config holds runtime configuration for the query service.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	URLPrefix       string

	LogLevel string
	LogJSON  bool

	DBEnabled      bool
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	DBConnTimeout  time.Duration
	DBQueryTimeout time.Duration
	ImageType      lwa.ImageType

	MoviesDir          string
	SynopDir           string
	SpecDailyURL       string
	QlookURLPrefix     string
	FFmpegBin          string
	MovieFramerate     int
	PreviewWindow      time.Duration
	AlwaysShowMovieBox bool

	BundleDir             string
	BundleRegistryPath    string
	BundleMaxFiles        int
	BundleTTL             time.Duration
	BundleJanitorInterval time.Duration

	PathRulesFile string
	PathRules     []lwa.PathRule
}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() (Config, error) {
	loadConfigDefaultsFromFile()
	loadSecretsDefaultsFromFile()

	imageType, err := lwa.ParseImageType(getEnv("APP_IMAGE_TYPE", "mfs"))
	if err != nil {
		return Config{}, err
	}

	staticDir := getEnv("APP_STATIC_DIR", "static")
	cfg := Config{
		ListenAddr:            getEnv("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:           time.Duration(getEnvInt("APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout:          time.Duration(getEnvInt("APP_WRITE_TIMEOUT_SEC", 300)) * time.Second,
		ShutdownTimeout:       time.Duration(getEnvInt("APP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		URLPrefix:             normalizePrefix(getEnv("APP_URL_PREFIX", "")),
		LogLevel:              getEnv("APP_LOG_LEVEL", "info"),
		LogJSON:               getEnvBool("APP_LOG_JSON", false),
		DBEnabled:             getEnvBool("APP_DB_ENABLED", false),
		DBHost:                getEnv("APP_DB_HOST", "127.0.0.1"),
		DBPort:                getEnvInt("APP_DB_PORT", 3306),
		DBUser:                getEnv("APP_DB_USER", "lwa"),
		DBPassword:            getEnv("APP_DB_PASSWORD", ""),
		DBName:                getEnv("APP_DB_NAME", "lwa_metadata_query"),
		DBConnTimeout:         time.Duration(getEnvInt("APP_DB_CONN_TIMEOUT_SEC", 5)) * time.Second,
		DBQueryTimeout:        time.Duration(getEnvInt("APP_DB_QUERY_TIMEOUT_SEC", 30)) * time.Second,
		ImageType:             imageType,
		MoviesDir:             getEnv("APP_MOVIES_DIR", filepath.Join(staticDir, "movies")),
		SynopDir:              getEnv("APP_SYNOP_DIR", "/common/webplots/lwa-data/qlook_images/slow/synop"),
		SpecDailyURL:          strings.TrimRight(getEnv("APP_SPEC_DAILY_URL", "https://ovsa.njit.edu/lwa/extm/daily"), "/"),
		QlookURLPrefix:        getEnv("APP_QLOOK_URL_PREFIX", "https://ovsa.njit.edu/lwa-data/qlook_images/slow/synop/"),
		FFmpegBin:             getEnv("APP_FFMPEG_BIN", "ffmpeg"),
		MovieFramerate:        getEnvInt("APP_MOVIE_FRAMERATE", 6),
		PreviewWindow:         time.Duration(getEnvInt("APP_PREVIEW_WINDOW_HOURS", 6)) * time.Hour,
		AlwaysShowMovieBox:    getEnvBool("APP_ALWAYS_SHOW_MOVIE_CONTAINER", false),
		BundleDir:             getEnv("APP_BUNDLE_DIR", filepath.Join(os.TempDir(), "lwa-bundles")),
		BundleRegistryPath:    getEnv("APP_BUNDLE_REGISTRY_PATH", filepath.Join(os.TempDir(), "lwa-bundles", "registry.db")),
		BundleMaxFiles:        getEnvInt("APP_BUNDLE_MAX_FILES", 5000),
		BundleTTL:             time.Duration(getEnvInt("APP_BUNDLE_TTL_HOURS", 24)) * time.Hour,
		BundleJanitorInterval: time.Duration(getEnvInt("APP_BUNDLE_JANITOR_INTERVAL_SEC", 600)) * time.Second,
		PathRulesFile:         getEnv("APP_PATH_RULES_FILE", ""),
		PathRules:             lwa.DefaultPathRules(),
	}

	if cfg.PathRulesFile != "" {
		rules, err := lwa.LoadPathRules(cfg.PathRulesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.PathRules = rules
	}
	return cfg, nil
}

// SynopRule maps the synoptic quicklook tree to its public location.
func (c Config) SynopRule() lwa.PathRule {
	return lwa.PathRule{
		Local: strings.TrimRight(c.SynopDir, "/") + "/",
		URL:   strings.TrimRight(c.QlookURLPrefix, "/") + "/",
	}
}

func normalizePrefix(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

func loadConfigDefaultsFromFile() {
	bootstrapCandidates := []string{
		"./lwa-query-web.env",
		"/etc/default/lwa-query-web",
	}

	for _, candidate := range bootstrapCandidates {
		abs := candidate
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				abs = filepath.Join(wd, candidate)
			}
		}
		_ = applyEnvDefaultsFromFile(abs)
	}

	candidates := make([]string, 0, 2)
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates, "/etc/lwa-query-web/config.env")

	for _, candidate := range candidates {
		abs := candidate
		if !filepath.IsAbs(candidate) {
			if wd, err := os.Getwd(); err == nil {
				abs = filepath.Join(wd, candidate)
			}
		}

		if err := applyEnvDefaultsFromFile(abs); err == nil {
			return
		}
	}
}

func loadSecretsDefaultsFromFile() {
	candidates := make([]string, 0, 3)
	if explicit := strings.TrimSpace(os.Getenv("APP_SECRETS_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		credName := strings.TrimSpace(os.Getenv("APP_SECRETS_CREDENTIAL_NAME"))
		if credName == "" {
			credName = "app-secrets"
		}
		candidates = append(candidates, filepath.Join(credDir, credName))
	}
	candidates = append(candidates, "/etc/lwa-query-web/secrets.env")
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := applyEnvDefaultsFromFile(candidate); err == nil {
			return
		}
	}
}

func applyEnvDefaultsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}

		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if key == "" {
			continue
		}

		if len(val) >= 2 {
			if (val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'') {
				val = val[1 : len(val)-1]
			}
		}

		if os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}

	return scanner.Err()
}

// MySQLDSN returns a mysql driver DSN with safe defaults for TCP access.
func (c Config) MySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("loc", "UTC")
	params.Set("timeout", c.DBConnTimeout.String())
	params.Set("readTimeout", c.DBQueryTimeout.String())
	params.Set("writeTimeout", c.DBQueryTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, params.Encode())
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}
