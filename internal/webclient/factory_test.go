package webclient

import (
	"testing"

	"github.com/raysh454/vigil/internal/logging"
)

func TestNew_UnregisteredBackend(t *testing.T) {
	if _, err := New(Config{Backend: "carrier-pigeon"}, nil); err == nil {
		t.Error("expected error for unregistered backend")
	}
}

func TestNew_DefaultsToNetHTTP(t *testing.T) {
	RegisterDefaultBackends()

	wc, err := New(Config{Timeout: 5}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer wc.Close()

	if _, ok := wc.(*NetHTTPClient); !ok {
		t.Errorf("expected NetHTTPClient, got %T", wc)
	}
}

func TestRegisterBackend_IgnoresEmptyName(t *testing.T) {
	before := len(ListBackends())
	RegisterBackend("", func(cfg Config, logger logging.Logger) (WebClient, error) {
		return nil, nil
	})
	if len(ListBackends()) != before {
		t.Error("empty backend name must not register")
	}
}
