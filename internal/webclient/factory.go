package webclient

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/vigil/internal/logging"
)

// Backend names accepted in configuration.
const (
	BackendNetHTTP  = "nethttp"
	BackendChromeDP = "chromedp"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	// Backend is one of the Backend* constants. Empty means nethttp.
	Backend string `yaml:"backend"`

	// Timeout bounds one fetch (nethttp) in seconds.
	Timeout int `yaml:"timeout"`

	// IdleAfter is the chromedp network-quiet window in seconds.
	IdleAfter int `yaml:"idle_after"`
}

// BackendConstructor builds a WebClient from the config.
type BackendConstructor func(cfg Config, logger logging.Logger) (WebClient, error)

var (
	mu       sync.RWMutex
	registry = map[string]BackendConstructor{}
)

// RegisterBackend registers a named backend constructor. Names are
// lower-cased; registering an existing name overwrites it.
func RegisterBackend(name string, ctor BackendConstructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// New constructs the configured backend. It returns an error when the
// named backend has not been registered.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendNetHTTP
	}

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("webclient backend %q not registered: available backends=%v", backend, ListBackends())
	}

	wc, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("construct webclient backend %q: %w", backend, err)
	}
	if wc == nil {
		return nil, errors.New("webclient constructor returned nil")
	}
	return wc, nil
}

// ListBackends returns the registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// RegisterDefaultBackends registers the nethttp and chromedp backends.
// Call early in main so New can find them.
func RegisterDefaultBackends() {
	RegisterBackend(BackendNetHTTP, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewNetHTTPClient(time.Duration(cfg.Timeout)*time.Second, logger, nil), nil
	})

	RegisterBackend(BackendChromeDP, func(cfg Config, logger logging.Logger) (WebClient, error) {
		return NewChromeDPClient(time.Duration(cfg.IdleAfter)*time.Second, logger)
	})
}
