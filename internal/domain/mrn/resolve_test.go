package mrn

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

func TestResolveCategoryExplicitField(t *testing.T) {
	cases := []struct {
		name string
		doc  map[string]interface{}
		want Category
	}{
		{
			name: "summary intakeCategory",
			doc:  map[string]interface{}{"summary": map[string]interface{}{"intakeCategory": "gyn_repro"}},
			want: CategoryGynRepro,
		},
		{
			name: "metadata intakeCategory",
			doc:  map[string]interface{}{"metadata": map[string]interface{}{"intakeCategory": "gyn_special"}},
			want: CategoryGynSpecial,
		},
		{
			name: "payload metadata intakeCategory",
			doc: map[string]interface{}{"payload": map[string]interface{}{
				"metadata": map[string]interface{}{"intakeCategory": "obstetri"},
			}},
			want: CategoryObstetri,
		},
		{
			name: "legacy payload intake_category",
			doc:  map[string]interface{}{"payload": map[string]interface{}{"intake_category": "gyn_repro"}},
			want: CategoryGynRepro,
		},
		{
			name: "mixed case normalized",
			doc:  map[string]interface{}{"summary": map[string]interface{}{"intakeCategory": "GYN_REPRO"}},
			want: CategoryGynRepro,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, explicit := ResolveCategory(tc.doc, testLogger)
			if got != tc.want {
				t.Errorf("category = %s, want %s", got, tc.want)
			}
			if !explicit {
				t.Error("explicit resolution reported as default path")
			}
		})
	}
}

func TestResolveCategoryNewKeyWinsOverLegacy(t *testing.T) {
	doc := map[string]interface{}{
		"summary": map[string]interface{}{"intakeCategory": "gyn_special"},
		"payload": map[string]interface{}{"intake_category": "gyn_repro"},
	}
	got, _ := ResolveCategory(doc, testLogger)
	if got != CategoryGynSpecial {
		t.Errorf("category = %s, want gyn_special (new key must win)", got)
	}
}

func TestResolveCategoryPregnancyInference(t *testing.T) {
	doc := map[string]interface{}{
		"payload": map[string]interface{}{"pregnant_status": "yes"},
	}
	got, explicit := ResolveCategory(doc, testLogger)
	if got != CategoryObstetri || !explicit {
		t.Errorf("got (%s, %v), want (obstetri, true)", got, explicit)
	}

	doc = map[string]interface{}{
		"summary": map[string]interface{}{"routing": map[string]interface{}{"pregnantStatus": "yes"}},
	}
	got, explicit = ResolveCategory(doc, testLogger)
	if got != CategoryObstetri || !explicit {
		t.Errorf("routing path: got (%s, %v), want (obstetri, true)", got, explicit)
	}
}

func TestResolveCategoryDefaultPath(t *testing.T) {
	cases := []map[string]interface{}{
		nil,
		{},
		{"payload": map[string]interface{}{"pregnant_status": "no"}},
		{"summary": map[string]interface{}{"intakeCategory": "not-a-category"}},
	}
	for i, doc := range cases {
		got, explicit := ResolveCategory(doc, testLogger)
		if got != CategoryObstetri {
			t.Errorf("case %d: category = %s, want obstetri", i, got)
		}
		if explicit {
			t.Errorf("case %d: default path reported as explicit", i)
		}
	}
}
