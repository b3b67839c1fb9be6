package config

import "testing"

func TestDefaultMatchesSpecConstants(t *testing.T) {
	cfg := Default()
	if cfg.TCP.TimeoutMS != 1000 {
		t.Fatalf("TimeoutMS = %d, want 1000", cfg.TCP.TimeoutMS)
	}
	if cfg.TCP.MaxTries != 5 {
		t.Fatalf("MaxTries = %d, want 5", cfg.TCP.MaxTries)
	}
	if cfg.TCP.ReceiveWindow != 1024 {
		t.Fatalf("ReceiveWindow = %d, want 1024", cfg.TCP.ReceiveWindow)
	}
	if cfg.Socket.InitialLocalPort != 1023 {
		t.Fatalf("InitialLocalPort = %d, want 1023", cfg.Socket.InitialLocalPort)
	}
	if cfg.Socket.ReadyQueueDepth != 32 {
		t.Fatalf("ReadyQueueDepth = %d, want 32", cfg.Socket.ReadyQueueDepth)
	}
}

func TestParseOverridesOnlyNamedFields(t *testing.T) {
	cfg, err := Parse(`
[tcp]
max_tries = 3
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.TCP.MaxTries != 3 {
		t.Fatalf("MaxTries = %d, want 3", cfg.TCP.MaxTries)
	}
	if cfg.TCP.TimeoutMS != 1000 {
		t.Fatalf("TimeoutMS = %d, want unchanged default 1000", cfg.TCP.TimeoutMS)
	}
	if cfg.Socket.ReadyQueueDepth != 32 {
		t.Fatalf("ReadyQueueDepth = %d, want unchanged default 32", cfg.Socket.ReadyQueueDepth)
	}
}

func TestTimeoutDuration(t *testing.T) {
	cfg := Default()
	if got, want := cfg.TCP.Timeout().Milliseconds(), int64(1000); got != want {
		t.Fatalf("Timeout() = %dms, want %dms", got, want)
	}
}
