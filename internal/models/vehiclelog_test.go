package models

import "testing"

func TestValidCategory(t *testing.T) {
	for id := CategoryService; id <= CategoryOther; id++ {
		if !ValidCategory(id) {
			t.Fatalf("expected category %d to be valid", id)
		}
	}

	for _, id := range []int{0, -1, 10, 100} {
		if ValidCategory(id) {
			t.Fatalf("expected category %d to be invalid", id)
		}
	}
}

func TestCategoryNamesCoverAllIDs(t *testing.T) {
	if len(CategoryNames) != 9 {
		t.Fatalf("expected 9 categories, got %d", len(CategoryNames))
	}
	if CategoryNames[CategoryTripsEvents] != "Trips & Events" {
		t.Fatalf("unexpected name: %q", CategoryNames[CategoryTripsEvents])
	}
}
