package session

import (
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/zleao/coralph/internal/config"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()
	cfg.Anthropic.APIKey = ""
	if _, err := NewClient(cfg); err == nil {
		t.Error("expected error without API key")
	}
}

func TestNewClientWithAPIKey(t *testing.T) {
	cfg := config.Default()
	cfg.Anthropic.APIKey = "sk-test-key"
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Model() != anthropic.Model(cfg.Run.Model) {
		t.Errorf("Model() = %q, want %q", client.Model(), cfg.Run.Model)
	}
	if client.Tracker() == nil {
		t.Error("Tracker() = nil")
	}
}

func TestTranslateModelForBedrock(t *testing.T) {
	cases := []struct {
		in   anthropic.Model
		want anthropic.Model
	}{
		{anthropic.ModelClaudeSonnet4_5_20250929, "us.anthropic.claude-sonnet-4-5-20250929-v1:0"},
		{"us.anthropic.claude-sonnet-4-5-20250929-v1:0", "us.anthropic.claude-sonnet-4-5-20250929-v1:0"},
		{"some-custom-model", "some-custom-model"},
	}
	for _, tc := range cases {
		if got := translateModelForBedrock(tc.in); got != tc.want {
			t.Errorf("translateModelForBedrock(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTokenTracker(t *testing.T) {
	tracker := NewTokenTracker()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Add(100, 50)
		}()
	}
	wg.Wait()

	in, out := tracker.Total()
	if in != 1000 || out != 500 {
		t.Errorf("Total() = (%d, %d), want (1000, 500)", in, out)
	}
	if tracker.Calls() != 10 {
		t.Errorf("Calls() = %d, want 10", tracker.Calls())
	}
}
