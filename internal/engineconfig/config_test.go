package engineconfig

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.Mode != RenderPrerender {
		t.Errorf("render mode = %q, want default %q", cfg.Render.Mode, RenderPrerender)
	}
	if cfg.Render.Concurrency != 4 {
		t.Errorf("render concurrency = %d, want default 4", cfg.Render.Concurrency)
	}
	if cfg.Replay.Tier != ReplayHTML {
		t.Errorf("replay tier = %q, want default %q", cfg.Replay.Tier, ReplayHTML)
	}
	if !cfg.Robots.Respect {
		t.Error("expected robots.respect to default true")
	}
	if !cfg.Privacy.StripCookies || !cfg.Privacy.StripAuthHeaders || !cfg.Privacy.RedactInputValues || !cfg.Privacy.RedactForms {
		t.Error("expected every privacy default to be true")
	}
	if cfg.MaxDepth != -1 || cfg.MaxErrors != -1 {
		t.Errorf("expected unbounded defaults, got max_depth=%d max_errors=%d", cfg.MaxDepth, cfg.MaxErrors)
	}
}

func TestValidateRejectsMissingSeeds(t *testing.T) {
	cfg := Config{
		OutAtlas: "output",
		Render:   RenderConfig{Mode: RenderRaw, Concurrency: 1},
		Replay:   ReplayConfig{Tier: ReplayHTML},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a config with no seeds")
	}
}

func TestValidateRejectsBadRenderMode(t *testing.T) {
	cfg := Config{
		Seeds:    []string{"https://example.com/"},
		OutAtlas: "output",
		Render:   RenderConfig{Mode: "nonsense", Concurrency: 1},
		Replay:   ReplayConfig{Tier: ReplayHTML},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an invalid render mode")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{
		Seeds:     []string{"https://example.com/"},
		OutAtlas:  "output",
		Render:    RenderConfig{Mode: RenderFull, Concurrency: 2},
		Replay:    ReplayConfig{Tier: ReplayFull},
		MaxDepth:  -1,
		MaxErrors: -1,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected a well-formed config to validate, got %v", err)
	}
}
