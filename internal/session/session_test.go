package session

import (
	"context"
	"testing"

	"algokg.app/core/internal/model"
)

func TestAppendProfileLines(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		updates  []model.UserProfileUpdate
		want     string
	}{
		{
			name:     "empty existing, single update",
			existing: "",
			updates:  []model.UserProfileUpdate{{RelationType: model.RelationMastered, TargetEntity: "BFS"}},
			want:     "MASTERED: BFS",
		},
		{
			name:     "appends to existing profile",
			existing: "MASTERED: DFS",
			updates:  []model.UserProfileUpdate{{RelationType: model.RelationWeakAt, TargetEntity: "Segment Tree"}},
			want:     "MASTERED: DFS\nWEAK_AT: Segment Tree",
		},
		{
			name:     "includes evidence when present",
			existing: "",
			updates:  []model.UserProfileUpdate{{RelationType: model.RelationInterestedIn, TargetEntity: "Graph Theory", Evidence: "asked three follow-ups"}},
			want:     "INTERESTED_IN: Graph Theory (asked three follow-ups)",
		},
		{
			name:     "skips updates with no target entity",
			existing: "MASTERED: BFS",
			updates:  []model.UserProfileUpdate{{RelationType: model.RelationWeakAt, TargetEntity: ""}},
			want:     "MASTERED: BFS",
		},
		{
			name:     "multiple updates in one call",
			existing: "",
			updates: []model.UserProfileUpdate{
				{RelationType: model.RelationMastered, TargetEntity: "BFS"},
				{RelationType: model.RelationMastered, TargetEntity: "DFS"},
			},
			want: "MASTERED: BFS\nMASTERED: DFS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := appendProfileLines(tt.existing, tt.updates)
			if got != tt.want {
				t.Errorf("appendProfileLines(%q, %v) = %q, want %q", tt.existing, tt.updates, got, tt.want)
			}
		})
	}
}

func TestNoopProfileStore(t *testing.T) {
	var store NoopProfileStore
	ctx := context.Background()
	profile, err := store.Read(ctx, 1)
	if err != nil || profile != "" {
		t.Fatalf("Read() = (%q, %v), want (\"\", nil)", profile, err)
	}
	if err := store.ApplyUpdates(ctx, 1, []model.UserProfileUpdate{{TargetEntity: "x"}}); err != nil {
		t.Fatalf("ApplyUpdates() = %v, want nil", err)
	}
}
