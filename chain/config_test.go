package chain

import (
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	cfg := New(RPC("https://example.org"))

	if cfg.Chain != Ethereum {
		t.Fatalf("chain = %s, want ethereum", cfg.Chain)
	}
	if cfg.HeadPollInterval != 2*time.Second || cfg.PendingPollInterval != 500*time.Millisecond {
		t.Fatalf("poll intervals = %v / %v", cfg.HeadPollInterval, cfg.PendingPollInterval)
	}
	if cfg.DedupWindow != 8192 || cfg.DecodeCacheCapacity != 10_000 {
		t.Fatalf("caps = %d / %d", cfg.DedupWindow, cfg.DecodeCacheCapacity)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := New(
		On(Optimism),
		RPC("https://op.example.org"),
		WS("wss://op.example.org"),
		HeadPollInterval(time.Second),
		DedupWindow(128),
	)
	if cfg.Chain != Optimism || cfg.HeadPollInterval != time.Second || cfg.DedupWindow != 128 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no endpoints", New()},
		{"bad rpc scheme", New(RPC("ftp://example.org"))},
		{"bad ws scheme", New(WS("http://example.org"))},
		{"unknown chain", New(RPC("https://x.org"), On(Chain("dogecoin")))},
		{"peers without gossipsub", New(RPC("https://x.org"), BootstrapPeers("/ip4/1.2.3.4/tcp/9000"))},
		{"zero poll interval", New(RPC("https://x.org"), HeadPollInterval(0))},
		{"zero dedup window", New(RPC("https://x.org"), DedupWindow(0))},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestParse(t *testing.T) {
	if c, err := Parse("base"); err != nil || c != Base {
		t.Fatalf("Parse(base) = %v, %v", c, err)
	}
	if _, err := Parse("dogecoin"); err == nil {
		t.Fatal("unknown chain should fail to parse")
	}
}
