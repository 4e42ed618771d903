package config

import (
	"testing"

	"swimguard/internal/swim"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "bare endpoint is UID-less",
			input: "127.0.0.1:50051",
			want: []Peer{
				{Endpoint: "127.0.0.1:50051"},
			},
		},
		{
			name:  "single identified peer",
			input: "n1=127.0.0.1:50051",
			want: []Peer{
				{UID: "n1", Endpoint: "127.0.0.1:50051"},
			},
		},
		{
			name:  "multiple peers",
			input: "n1=127.0.0.1:50051,n2=127.0.0.1:50052,127.0.0.1:50053",
			want: []Peer{
				{UID: "n1", Endpoint: "127.0.0.1:50051"},
				{UID: "n2", Endpoint: "127.0.0.1:50052"},
				{Endpoint: "127.0.0.1:50053"},
			},
		},
		{
			name:  "with spaces",
			input: "n1 = 127.0.0.1:50051 , n2 = 127.0.0.1:50052",
			want: []Peer{
				{UID: "n1", Endpoint: "127.0.0.1:50051"},
				{UID: "n2", Endpoint: "127.0.0.1:50052"},
			},
		},
		{
			name:    "invalid format - empty UID",
			input:   "=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty endpoint",
			input:   "n1=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParsePeers() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i] != tt.want[i] {
						t.Errorf("ParsePeers()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestBuildSwimNodes(t *testing.T) {
	peers := []Peer{
		{UID: "n2", Endpoint: "127.0.0.1:50052"},
		{Endpoint: "127.0.0.1:50053"},
	}

	nodes := BuildSwimNodes(peers)
	want := []swim.Node{
		{Endpoint: "127.0.0.1:50052", UID: "n2"},
		{Endpoint: "127.0.0.1:50053"},
	}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(nodes))
	}
	for i := range nodes {
		if nodes[i] != want[i] {
			t.Errorf("node %d = %+v, want %+v", i, nodes[i], want[i])
		}
	}
}

func TestDefaultFileConfig_SettingsRoundTrip(t *testing.T) {
	cfg := DefaultFileConfig()
	settings := cfg.Settings()
	direct := swim.DefaultSettings()

	if settings.ProbeInterval != direct.ProbeInterval {
		t.Errorf("ProbeInterval = %v, want %v", settings.ProbeInterval, direct.ProbeInterval)
	}
	if settings.MaxIndependentSuspicions != direct.MaxIndependentSuspicions {
		t.Errorf("MaxIndependentSuspicions = %d, want %d", settings.MaxIndependentSuspicions, direct.MaxIndependentSuspicions)
	}
	if settings.NeedsToBeGossipedMoreTimes == nil {
		t.Error("expected a non-nil dissemination predicate")
	}
}
