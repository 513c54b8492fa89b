package intake

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMaterializeTotalOnEmptyPayload(t *testing.T) {
	sub := &Submission{
		SubmissionID: "1724900000000-empty1",
		ReceivedAt:   time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
		Status:       StatusSubmitted,
		Payload:      json.RawMessage(`{}`),
	}

	m, err := Materialize(sub, time.Now().UTC())
	if err != nil {
		t.Fatalf("Materialize on empty payload: %v", err)
	}
	if m.SubmissionID != sub.SubmissionID {
		t.Errorf("submissionId = %s", m.SubmissionID)
	}
	if m.PatientProfile.FullName != nil {
		t.Error("missing name should be nil")
	}
	if m.Pregnancy.Status != "patient_reported" {
		t.Errorf("pregnancy status = %s", m.Pregnancy.Status)
	}
	if m.Pregnancy.RiskFlags == nil || len(m.Pregnancy.RiskFlags) != 0 {
		t.Error("riskFlags should be an empty list, not nil")
	}
	if m.Medications == nil {
		t.Error("medications should be an empty list, not nil")
	}
	if m.Audit.Consent || m.Audit.FinalAck {
		t.Error("consent flags should default to false")
	}

	// The projection must serialize with explicit nulls, never panic.
	if _, err := json.Marshal(m); err != nil {
		t.Fatalf("marshal: %v", err)
	}
}

func TestMaterializeCanonicalKeys(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"full_name": "Siti Rahma",
		"lmp":       "2026-01-10",
		"metadata": map[string]interface{}{
			"edd":             map[string]interface{}{"value": "2026-10-17", "source": "usg"},
			"highRisk":        true,
			"riskFlags":       []interface{}{"anemia"},
			"obstetricTotals": map[string]interface{}{"gravida": 3, "para": 1},
		},
		"previousPregnancies": []interface{}{
			map[string]interface{}{"index": 1, "year": "2021", "mode": "sc", "weight": "3100", "alive": "yes"},
		},
		"prenatalVisits": []interface{}{
			map[string]interface{}{"index": 1, "date": "2026-02-01", "ga": "8w", "bp": "110/70"},
		},
		"labResults": []interface{}{
			map[string]interface{}{"test": "Hb", "result": "10.2", "date": "2026-02-01"},
		},
		"signature": map[string]interface{}{"value": "sig-data"},
		"consent":   true,
	})
	sub := &Submission{
		SubmissionID: "1724900000001-canon1",
		ReceivedAt:   time.Now().UTC(),
		Status:       StatusSubmitted,
		Payload:      payload,
		Client:       Client{IP: "203.0.113.7", UserAgent: "ua"},
	}

	m, err := Materialize(sub, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if m.PatientProfile.FullName != "Siti Rahma" {
		t.Errorf("fullName = %v", m.PatientProfile.FullName)
	}
	if m.Pregnancy.EDD != "2026-10-17" || m.Pregnancy.EDDSource != "usg" {
		t.Errorf("edd = %v source %v", m.Pregnancy.EDD, m.Pregnancy.EDDSource)
	}
	if !m.Pregnancy.HighRisk {
		t.Error("highRisk lost")
	}
	if g, ok := m.Pregnancy.Totals.Gravida.(float64); !ok || g != 3 {
		t.Errorf("gravida = %v", m.Pregnancy.Totals.Gravida)
	}
	if m.Pregnancy.Totals.Abortus != nil {
		t.Error("missing abortus should be nil")
	}

	if len(m.ObstetricHistory) != 1 {
		t.Fatalf("obstetric history = %d entries", len(m.ObstetricHistory))
	}
	hx := m.ObstetricHistory[0]
	if hx.ChildAlive != "yes" || hx.Origin != "patient" {
		t.Errorf("history entry = %+v", hx)
	}

	if len(m.PrenatalVisits) != 1 {
		t.Fatalf("visits = %d", len(m.PrenatalVisits))
	}
	visit := m.PrenatalVisits[0]
	if visit.VisitDate != "2026-02-01" || visit.BloodPressure != "110/70" {
		t.Errorf("visit = %+v", visit)
	}
	if visit.FetalHeartRate != nil {
		t.Error("missing fhr should be nil")
	}

	if len(m.LabResults) != 1 || m.LabResults[0].TestName != "Hb" {
		t.Errorf("labs = %+v", m.LabResults)
	}

	if m.Audit.Signature != "sig-data" || !m.Audit.Consent {
		t.Errorf("audit = %+v", m.Audit)
	}
	if m.Audit.ClientIP != "203.0.113.7" {
		t.Errorf("clientIp = %v", m.Audit.ClientIP)
	}

	if m.OriginalPayload["full_name"] != "Siti Rahma" {
		t.Error("original payload should ride along")
	}
}

func TestMaterializeLegacyKeyFallbacks(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"edd":     "2026-11-01",
		"gravida": 2,
		"previousPregnancies": []interface{}{
			map[string]interface{}{"child_alive": "no"},
		},
		"prenatalVisits": []interface{}{
			map[string]interface{}{
				"visit_no": 2, "visit_date": "2026-03-01", "visit_ga": "12w",
				"visit_weight": "58", "visit_bp": "120/80", "visit_fhr": "150", "visit_note": "ok",
			},
		},
		"labResults": []interface{}{
			map[string]interface{}{
				"lab_test": "HbsAg", "lab_recommend": "2026-03-01",
				"lab_date": "2026-03-05", "lab_result": "negative", "lab_follow": "none",
			},
		},
		"patient_signature": "legacy-sig",
	})
	sub := &Submission{
		SubmissionID: "1724900000002-legacy",
		ReceivedAt:   time.Now().UTC(),
		Status:       StatusSubmitted,
		Payload:      payload,
	}

	m, err := Materialize(sub, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if m.Pregnancy.EDD != "2026-11-01" {
		t.Errorf("edd legacy fallback = %v", m.Pregnancy.EDD)
	}
	if g, _ := m.Pregnancy.Totals.Gravida.(float64); g != 2 {
		t.Errorf("gravida legacy fallback = %v", m.Pregnancy.Totals.Gravida)
	}
	if m.ObstetricHistory[0].ChildAlive != "no" {
		t.Errorf("child_alive fallback = %v", m.ObstetricHistory[0].ChildAlive)
	}

	visit := m.PrenatalVisits[0]
	if n, _ := visit.VisitNumber.(float64); n != 2 {
		t.Errorf("visit_no fallback = %v", visit.VisitNumber)
	}
	if visit.Notes != "ok" || visit.FetalHeartRate != "150" {
		t.Errorf("visit = %+v", visit)
	}

	lab := m.LabResults[0]
	if lab.TestName != "HbsAg" || lab.FollowUp != "none" || lab.PerformedAt != "2026-03-05" {
		t.Errorf("lab = %+v", lab)
	}

	if m.Audit.Signature != "legacy-sig" {
		t.Errorf("signature fallback = %v", m.Audit.Signature)
	}
}

func TestMaterializeNewKeyWinsOverLegacy(t *testing.T) {
	payload, _ := json.Marshal(map[string]interface{}{
		"prenatalVisits": []interface{}{
			map[string]interface{}{"index": 1, "visit_no": 9, "date": "2026-02-01", "visit_date": "1999-01-01"},
		},
		"signature":         map[string]interface{}{"value": "new-sig"},
		"patient_signature": "legacy-sig",
	})
	sub := &Submission{
		SubmissionID: "1724900000003-newwin",
		ReceivedAt:   time.Now().UTC(),
		Status:       StatusSubmitted,
		Payload:      payload,
	}

	m, err := Materialize(sub, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	visit := m.PrenatalVisits[0]
	if n, _ := visit.VisitNumber.(float64); n != 1 {
		t.Errorf("visit number = %v, new key must win", visit.VisitNumber)
	}
	if visit.VisitDate != "2026-02-01" {
		t.Errorf("visit date = %v, new key must win", visit.VisitDate)
	}
	if m.Audit.Signature != "new-sig" {
		t.Errorf("signature = %v, new key must win", m.Audit.Signature)
	}
}
