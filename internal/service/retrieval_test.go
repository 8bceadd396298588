package service

import (
	"testing"
	"time"

	"github.com/mhara/deskrag/internal/repository"
)

func testDefaults() Defaults {
	return Defaults{
		Platform:             "freshdesk",
		TopK:                 5,
		RRFK:                 60,
		DecayHalfLifeDays:    180,
		DecayFloor:           0.1,
		ErrorBoostMultiplier: 1.5,
		RerankTopN:           10,
		RerankerEnabled:      true,
		Timeout:              10 * time.Second,
	}
}

func TestResolveOptionsLayering(t *testing.T) {
	svc := NewRetrievalService(nil, nil, nil, testDefaults(), nil)

	tests := []struct {
		name         string
		cfg          repository.RetrievalConfig
		params       RetrieveParams
		wantPlatform string
		wantTopK     int
		wantRRFK     int
		wantRerankN  int
		wantTimeout  time.Duration
	}{
		{
			name:         "defaults only",
			cfg:          repository.RetrievalConfig{RerankerEnabled: true},
			wantPlatform: "freshdesk",
			wantTopK:     5,
			wantRRFK:     60,
			wantRerankN:  10,
			wantTimeout:  10 * time.Second,
		},
		{
			name: "tenant config overrides defaults",
			cfg: repository.RetrievalConfig{
				DefaultPlatform: "zendesk",
				TopK:            8,
				RRFK:            30,
				RerankTopN:      4,
				RerankerEnabled: true,
				TimeoutMS:       2000,
			},
			wantPlatform: "zendesk",
			wantTopK:     8,
			wantRRFK:     30,
			wantRerankN:  4,
			wantTimeout:  2 * time.Second,
		},
		{
			name: "request overrides tenant config",
			cfg: repository.RetrievalConfig{
				DefaultPlatform: "zendesk",
				TopK:            8,
				RerankerEnabled: true,
				TimeoutMS:       2000,
			},
			params: RetrieveParams{
				Platform:  "freshdesk",
				TopK:      3,
				TimeoutMS: 500,
			},
			wantPlatform: "freshdesk",
			wantTopK:     3,
			wantRRFK:     60,
			wantRerankN:  10,
			wantTimeout:  500 * time.Millisecond,
		},
		{
			name:         "reranker disabled per tenant zeroes top-n",
			cfg:          repository.RetrievalConfig{RerankerEnabled: false},
			params:       RetrieveParams{RerankTopN: 20},
			wantPlatform: "freshdesk",
			wantTopK:     5,
			wantRRFK:     60,
			wantRerankN:  0,
			wantTimeout:  10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform, opts := svc.resolveOptions(tt.cfg, tt.params)

			if platform != tt.wantPlatform {
				t.Errorf("platform = %s, want %s", platform, tt.wantPlatform)
			}
			if opts.TopK != tt.wantTopK {
				t.Errorf("TopK = %d, want %d", opts.TopK, tt.wantTopK)
			}
			if opts.RRFK != tt.wantRRFK {
				t.Errorf("RRFK = %d, want %d", opts.RRFK, tt.wantRRFK)
			}
			if opts.RerankTopN != tt.wantRerankN {
				t.Errorf("RerankTopN = %d, want %d", opts.RerankTopN, tt.wantRerankN)
			}
			if opts.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", opts.Timeout, tt.wantTimeout)
			}
		})
	}
}

func TestResolveOptionsDecayTunables(t *testing.T) {
	svc := NewRetrievalService(nil, nil, nil, testDefaults(), nil)

	_, opts := svc.resolveOptions(repository.RetrievalConfig{}, RetrieveParams{
		DecayHalfLifeDays:    90,
		DecayFloor:           0.2,
		ErrorBoostMultiplier: 2.0,
	})

	if opts.DecayHalfLife != 90*24*time.Hour {
		t.Errorf("DecayHalfLife = %v, want 90 days", opts.DecayHalfLife)
	}
	if opts.DecayFloor != 0.2 {
		t.Errorf("DecayFloor = %v, want 0.2", opts.DecayFloor)
	}
	if opts.ErrorBoostMultiplier != 2.0 {
		t.Errorf("ErrorBoostMultiplier = %v, want 2.0", opts.ErrorBoostMultiplier)
	}
}

func TestResolveOptionsMinResultsIsRequestOnly(t *testing.T) {
	svc := NewRetrievalService(nil, nil, nil, testDefaults(), nil)

	_, opts := svc.resolveOptions(repository.RetrievalConfig{}, RetrieveParams{})
	if opts.MinResults != 0 {
		t.Errorf("MinResults = %d, want 0 when the request sets none", opts.MinResults)
	}

	_, opts = svc.resolveOptions(repository.RetrievalConfig{}, RetrieveParams{MinResults: 3})
	if opts.MinResults != 3 {
		t.Errorf("MinResults = %d, want 3", opts.MinResults)
	}
}
