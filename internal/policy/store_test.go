package policy

import (
	"sync"
	"testing"
)

func TestStore_DefaultsForUnknownIdentity(t *testing.T) {
	s := NewStore(nil)
	cfg := s.Get("nobody")
	if cfg == nil {
		t.Fatal("expected defaults, got nil")
	}
	if !cfg.BlockHarmfulContent || cfg.MaxRequestsPerMinute != 60 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestStore_CustomDefaults(t *testing.T) {
	defaults := Default()
	defaults.MaxRequestsPerMinute = 5
	s := NewStore(defaults)

	if got := s.Get("anyone").MaxRequestsPerMinute; got != 5 {
		t.Errorf("MaxRequestsPerMinute = %d, want 5", got)
	}
}

func TestStore_ReplaceAndReset(t *testing.T) {
	s := NewStore(nil)

	cfg := Default()
	cfg.MaxRequestsPerMinute = 1
	cfg.BlockedTools = []string{"fetch_url"}
	s.Replace("alice", cfg)

	got := s.Get("alice")
	if got.MaxRequestsPerMinute != 1 || len(got.BlockedTools) != 1 {
		t.Errorf("replace not observed: %+v", got)
	}
	if s.Get("bob").MaxRequestsPerMinute != 60 {
		t.Error("other identities must keep defaults")
	}

	s.Reset("alice")
	if s.Get("alice").MaxRequestsPerMinute != 60 {
		t.Error("reset should revert to defaults")
	}
}

func TestStore_SnapshotSurvivesReplace(t *testing.T) {
	s := NewStore(nil)

	first := Default()
	first.MaxResponseLength = 100
	s.Replace("alice", first)

	snapshot := s.Get("alice")

	second := Default()
	second.MaxResponseLength = 999
	s.Replace("alice", second)

	// The captured snapshot is untouched; a fresh lookup sees the new value.
	if snapshot.MaxResponseLength != 100 {
		t.Errorf("snapshot mutated to %d", snapshot.MaxResponseLength)
	}
	if s.Get("alice").MaxResponseLength != 999 {
		t.Error("fresh lookup should see the replacement")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cfg := Default()
			cfg.MaxRequestsPerMinute = 7
			s.Replace("alice", cfg)
		}()
		go func() {
			defer wg.Done()
			cfg := s.Get("alice")
			if n := cfg.MaxRequestsPerMinute; n != 60 && n != 7 {
				t.Errorf("torn read: %d", n)
			}
		}()
	}
	wg.Wait()
}

func TestConfiguration_Clone(t *testing.T) {
	cfg := Default()
	cfg.AllowedTools = []string{"calculator"}
	cfg.BlockedTools = []string{"fetch_url"}

	clone := cfg.Clone()
	clone.AllowedTools[0] = "other"
	clone.BlockedTools = append(clone.BlockedTools, "extra")
	clone.MaxRequestsPerMinute = 1

	if cfg.AllowedTools[0] != "calculator" {
		t.Error("clone shares AllowedTools backing array")
	}
	if len(cfg.BlockedTools) != 1 {
		t.Error("clone shares BlockedTools")
	}
	if cfg.MaxRequestsPerMinute != 60 {
		t.Error("clone shares scalar fields")
	}
}

func TestConfiguration_CloneNilAllowList(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	if clone.AllowedTools != nil {
		t.Error("nil allow list must stay nil: it means every tool is allowed")
	}
}
