package models

import "testing"

func TestValidUsername(t *testing.T) {
	valid := []string{"abc", "user.name", "a_b-c", "Big%Cat", "plus+one", "fifteen.chars.x"}
	for _, name := range valid {
		if !ValidUsername(name) {
			t.Fatalf("expected %q to be valid", name)
		}
	}

	invalid := []string{
		"",
		"ab",                 // 太短
		"sixteen.chars.xx",   // 太长
		"has space",
		"emoji😀name",
		"semi;colon",
		"slash/name",
	}
	for _, name := range invalid {
		if ValidUsername(name) {
			t.Fatalf("expected %q to be invalid", name)
		}
	}
}
