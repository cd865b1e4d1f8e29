package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "clipforge.json", `{"top_n": 5, "export_dir": "/srv/clips"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.GetTopN(); got != 5 {
		t.Errorf("GetTopN = %d, want 5", got)
	}
	if got := cfg.GetExportDir(); got != "/srv/clips" {
		t.Errorf("GetExportDir = %q", got)
	}
	if got := cfg.GetExportCapacity(); got != 2 {
		t.Errorf("GetExportCapacity = %d, want default 2", got)
	}
	if got := cfg.GetTextWeight(); got != 0.55 {
		t.Errorf("GetTextWeight = %f, want default 0.55", got)
	}
	if got := cfg.GetAdapterTimeout(); got != 5*time.Minute {
		t.Errorf("GetAdapterTimeout = %v, want default 5m", got)
	}
	if !cfg.GetLogConsole() {
		t.Error("GetLogConsole should default to true")
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	path := writeConfig(t, "clipforge.yaml", `{}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-json extension")
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"top_n": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateThresholdOrdering(t *testing.T) {
	accept, reject := 0.4, 0.6
	cfg := Empty()
	cfg.AcceptThreshold = &accept
	cfg.RejectThreshold = &reject
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when reject threshold exceeds accept threshold")
	}
}

func TestValidateGateWeightsMustSum(t *testing.T) {
	tw, vw := 0.8, 0.3
	cfg := Empty()
	cfg.TextWeight = &tw
	cfg.VisionWeight = &vw
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for gate weights summing to 1.1")
	}
}

func TestValidateCombinerWeightsAllOrNothing(t *testing.T) {
	w := 0.5
	cfg := Empty()
	cfg.WeightText = &w
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for partial combiner weight override")
	}
}

func TestValidateCombinerWeightsFullOverride(t *testing.T) {
	cfg := Empty()
	vals := []float64{0.4, 0.3, 0.1, 0.1, 0.1}
	cfg.WeightText = &vals[0]
	cfg.WeightVision = &vals[1]
	cfg.WeightAudioEmphasis = &vals[2]
	cfg.WeightFacialEmphasis = &vals[3]
	cfg.WeightCloud = &vals[4]
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := cfg.CombineWeights().Text; got != 0.4 {
		t.Errorf("CombineWeights().Text = %f, want 0.4", got)
	}
}

func TestValidateBadDuration(t *testing.T) {
	d := "ninety seconds"
	cfg := Empty()
	cfg.CloudTimeout = &d
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestValidateUnknownLogLevel(t *testing.T) {
	lvl := "verbose"
	cfg := Empty()
	cfg.LogLevel = &lvl
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	// Get* accessors never fail; Validate is the gate for bad input.
	d := "nope"
	cfg := Empty()
	cfg.WatchInterval = &d
	if got := cfg.GetWatchInterval(); got != 30*time.Second {
		t.Errorf("GetWatchInterval = %v, want default 30s", got)
	}
}

func TestGateConfigUsesDefaults(t *testing.T) {
	g := Empty().GateConfig()
	if g.AcceptThreshold != 0.65 || g.RejectThreshold != 0.40 {
		t.Errorf("unexpected default thresholds: %+v", g)
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("default gate config invalid: %v", err)
	}
}
