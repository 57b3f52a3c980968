package domain

import "testing"

func TestNormalizeFamily(t *testing.T) {
	tests := []struct {
		planID string
		want   PlanFamily
	}{
		{"single", FamilySingle},
		{"single_instrumental", FamilySingle},
		{"single_custom_lyric", FamilySingle},
		{"album", FamilyAlbum},
		{"album_deluxe", FamilyAlbum},
		{"subscription_monthly", FamilySubscription},
		{"sub_yearly", FamilySubscription},
		{"", FamilyUnknown},
		{"bundle_holiday", FamilyUnknown},
	}

	for _, tt := range tests {
		if got := NormalizeFamily(tt.planID); got != tt.want {
			t.Errorf("NormalizeFamily(%q) = %q, want %q", tt.planID, got, tt.want)
		}
	}
}

func TestPlanCatalogListSkipsInactive(t *testing.T) {
	catalog := NewPlanCatalog([]Plan{
		{ID: "single", Family: FamilySingle, Active: true},
		{ID: "album_legacy", Family: FamilyAlbum, Active: false},
		{ID: "album", Family: FamilyAlbum, Active: true},
	})

	list := catalog.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 active plans, got %d", len(list))
	}
	if list[0].ID != "single" || list[1].ID != "album" {
		t.Fatalf("expected catalog order preserved, got %+v", list)
	}

	if _, ok := catalog.Get("album_legacy"); !ok {
		t.Fatal("inactive plans must still resolve by id")
	}
}
