package mrn

import (
	"errors"
	"testing"
)

func TestFormatMrID(t *testing.T) {
	cases := []struct {
		category Category
		sequence int
		want     string
	}{
		{CategoryObstetri, 1, "MROBS0001"},
		{CategoryGynRepro, 2, "MRGPR0002"},
		{CategoryGynSpecial, 3, "MRGPS0003"},
		{CategoryObstetri, 42, "MROBS0042"},
		{CategoryObstetri, 9999, "MROBS9999"},
	}
	for _, tc := range cases {
		if got := FormatMrID(tc.category, tc.sequence); got != tc.want {
			t.Errorf("FormatMrID(%s, %d) = %s, want %s", tc.category, tc.sequence, got, tc.want)
		}
	}
}

func TestMrIDPattern(t *testing.T) {
	valid := []string{"MROBS0001", "MRGPR0420", "MRGPS9999"}
	for _, id := range valid {
		if !MrIDPattern.MatchString(id) {
			t.Errorf("%s should match", id)
		}
	}

	invalid := []string{"MR0001", "MROBS001", "MROBS00001", "mrobs0001", "MRXXX0001", "MROBS0001X"}
	for _, id := range invalid {
		if MrIDPattern.MatchString(id) {
			t.Errorf("%s should not match", id)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("  Obstetri ")
	if err != nil {
		t.Fatalf("ParseCategory: %v", err)
	}
	if c != CategoryObstetri {
		t.Errorf("category = %s, want obstetri", c)
	}

	_, err = ParseCategory("pediatri")
	var invalid *InvalidCategoryError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidCategoryError, got %v", err)
	}
	if invalid.Category != "pediatri" {
		t.Errorf("error category = %q, want pediatri", invalid.Category)
	}
}

func TestCategoryPrefixes(t *testing.T) {
	want := map[Category]string{
		CategoryObstetri:   "MROBS",
		CategoryGynRepro:   "MRGPR",
		CategoryGynSpecial: "MRGPS",
	}
	for c, prefix := range want {
		if c.Prefix() != prefix {
			t.Errorf("%s prefix = %s, want %s", c, c.Prefix(), prefix)
		}
	}
	if Category("unknown").Valid() {
		t.Error("unknown category reported valid")
	}
}
