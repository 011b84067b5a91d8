package daemonrun

import (
	"testing"
	"time"

	"coursewatch/internal/config"
	"coursewatch/internal/logging"
)

func TestFetchClientHonorsConfiguredTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Monitor.FetchTimeoutSec = 7
	if got := fetchClient(&cfg).Timeout; got != 7*time.Second {
		t.Fatalf("unexpected client timeout: %s", got)
	}

	cfg.Monitor.FetchTimeoutSec = 0
	if got := fetchClient(&cfg).Timeout; got <= 0 {
		t.Fatalf("timeout must stay bounded when unset, got %s", got)
	}
}

func TestBuildSelectorSkipsBrowserWhenDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Enabled = false
	_, browser := buildSelector(&cfg, logging.NewNop())
	if browser != nil {
		t.Fatal("browser strategy should not be constructed when disabled")
	}
}
