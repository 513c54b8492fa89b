package intake

import (
	"time"
)

// The materialized shapes keep patient-declared values as interface{}:
// the web and Android intake forms have shipped several field renames, so
// the same logical field may arrive as a string in one vintage and a
// number in another. Canonical names with null for anything missing.

type PatientProfile struct {
	FullName         interface{} `json:"fullName"`
	NIK              interface{} `json:"nik"`
	DOB              interface{} `json:"dob"`
	Phone            interface{} `json:"phone"`
	Address          interface{} `json:"address"`
	MaritalStatus    interface{} `json:"maritalStatus"`
	Occupation       interface{} `json:"occupation"`
	Education        interface{} `json:"education"`
	EmergencyContact interface{} `json:"emergencyContact"`
	CreatedAt        time.Time   `json:"createdAt"`
}

type PregnancyTotals struct {
	Gravida interface{} `json:"gravida"`
	Para    interface{} `json:"para"`
	Abortus interface{} `json:"abortus"`
	Living  interface{} `json:"living"`
}

type Pregnancy struct {
	LMP                      interface{}     `json:"lmp"`
	EDD                      interface{}     `json:"edd"`
	EDDSource                interface{}     `json:"eddSource"`
	FirstCheckGestationalAge interface{}     `json:"firstCheckGestationalAge"`
	HeightCm                 interface{}     `json:"heightCm"`
	WeightKg                 interface{}     `json:"weightKg"`
	BMI                      interface{}     `json:"bmi"`
	BMICategory              interface{}     `json:"bmiCategory"`
	BloodPressure            interface{}     `json:"bloodPressure"`
	MuacCm                   interface{}     `json:"muacCm"`
	GeneralCondition         interface{}     `json:"generalCondition"`
	Status                   string          `json:"status"`
	RiskFlags                []interface{}   `json:"riskFlags"`
	HighRisk                 bool            `json:"highRisk"`
	Totals                   PregnancyTotals `json:"totals"`
}

type ObstetricEntry struct {
	Sequence      interface{} `json:"sequence"`
	Year          interface{} `json:"year"`
	DeliveryMode  interface{} `json:"deliveryMode"`
	Complications interface{} `json:"complications"`
	BabyWeight    interface{} `json:"babyWeight"`
	ChildAlive    interface{} `json:"childAlive"`
	Origin        string      `json:"origin"`
}

type PrenatalVisit struct {
	VisitNumber    interface{} `json:"visitNumber"`
	VisitDate      interface{} `json:"visitDate"`
	GestationalAge interface{} `json:"gestationalAge"`
	Weight         interface{} `json:"weight"`
	BloodPressure  interface{} `json:"bloodPressure"`
	FetalHeartRate interface{} `json:"fetalHeartRate"`
	Notes          interface{} `json:"notes"`
	Origin         string      `json:"origin"`
}

type LabResult struct {
	TestName      interface{} `json:"testName"`
	RecommendedAt interface{} `json:"recommendedAt"`
	PerformedAt   interface{} `json:"performedAt"`
	Result        interface{} `json:"result"`
	FollowUp      interface{} `json:"followUp"`
	Origin        string      `json:"origin"`
}

type Audit struct {
	Signature interface{} `json:"signature"`
	Consent   bool        `json:"consent"`
	FinalAck  bool        `json:"finalAck"`
	ClientIP  interface{} `json:"clientIp"`
	UserAgent interface{} `json:"userAgent"`
}

// Materialized is the EMR-shaped projection of one submission. The raw
// payload rides along so nothing is lost if a mapping misses a field.
type Materialized struct {
	SubmissionID     string                 `json:"submissionId"`
	ReceivedAt       time.Time              `json:"receivedAt"`
	PatientProfile   PatientProfile         `json:"patientProfile"`
	Pregnancy        Pregnancy              `json:"pregnancy"`
	Medications      []interface{}          `json:"medications"`
	ObstetricHistory []ObstetricEntry       `json:"obstetricHistory"`
	PrenatalVisits   []PrenatalVisit        `json:"prenatalVisits"`
	LabResults       []LabResult            `json:"labResults"`
	Audit            Audit                  `json:"audit"`
	OriginalPayload  map[string]interface{} `json:"originalPayload"`
}

// Materialize projects a submission onto the EMR structures. It is total:
// any payload, including an empty one, produces a complete projection
// with nulls where data is missing. It never mutates the submission.
func Materialize(sub *Submission, now time.Time) (*Materialized, error) {
	payload, err := sub.PayloadMap()
	if err != nil {
		return nil, err
	}
	meta := submap(payload, "metadata")
	eddInfo := submap(meta, "edd")
	totals := submap(meta, "obstetricTotals")

	m := &Materialized{
		SubmissionID: sub.SubmissionID,
		ReceivedAt:   sub.ReceivedAt,
		PatientProfile: PatientProfile{
			FullName:         field(payload, "full_name"),
			NIK:              field(payload, "nik"),
			DOB:              field(payload, "dob"),
			Phone:            field(payload, "phone"),
			Address:          field(payload, "address"),
			MaritalStatus:    field(payload, "marital_status"),
			Occupation:       field(payload, "occupation"),
			Education:        field(payload, "education"),
			EmergencyContact: field(payload, "emergency_contact"),
			CreatedAt:        now,
		},
		Pregnancy: Pregnancy{
			LMP:                      field(payload, "lmp"),
			EDD:                      coalesce(field(eddInfo, "value"), field(payload, "edd")),
			EDDSource:                field(eddInfo, "source"),
			FirstCheckGestationalAge: field(payload, "first_check_ga"),
			HeightCm:                 field(payload, "height"),
			WeightKg:                 field(payload, "weight"),
			BMI:                      field(payload, "bmi"),
			BMICategory:              field(meta, "bmiCategory"),
			BloodPressure:            field(payload, "blood_pressure"),
			MuacCm:                   field(payload, "muac"),
			GeneralCondition:         field(payload, "general_condition"),
			Status:                   "patient_reported",
			RiskFlags:                sublist(meta, "riskFlags"),
			HighRisk:                 truthy(meta["highRisk"]),
			Totals: PregnancyTotals{
				Gravida: coalesce(field(totals, "gravida"), field(payload, "gravida")),
				Para:    field(totals, "para"),
				Abortus: field(totals, "abortus"),
				Living:  field(totals, "living"),
			},
		},
		Medications:     sublist(payload, "medications"),
		OriginalPayload: payload,
	}

	for _, item := range entries(payload, "previousPregnancies") {
		m.ObstetricHistory = append(m.ObstetricHistory, ObstetricEntry{
			Sequence:      field(item, "index"),
			Year:          field(item, "year"),
			DeliveryMode:  field(item, "mode"),
			Complications: field(item, "complication"),
			BabyWeight:    field(item, "weight"),
			ChildAlive:    coalesce(field(item, "alive"), field(item, "child_alive")),
			Origin:        "patient",
		})
	}
	for _, item := range entries(payload, "prenatalVisits") {
		m.PrenatalVisits = append(m.PrenatalVisits, PrenatalVisit{
			VisitNumber:    coalesce(field(item, "index"), field(item, "visit_no")),
			VisitDate:      coalesce(field(item, "date"), field(item, "visit_date")),
			GestationalAge: coalesce(field(item, "ga"), field(item, "visit_ga")),
			Weight:         coalesce(field(item, "weight"), field(item, "visit_weight")),
			BloodPressure:  coalesce(field(item, "bp"), field(item, "visit_bp")),
			FetalHeartRate: coalesce(field(item, "fhr"), field(item, "visit_fhr")),
			Notes:          coalesce(field(item, "note"), field(item, "visit_note")),
			Origin:         "patient",
		})
	}
	for _, item := range entries(payload, "labResults") {
		m.LabResults = append(m.LabResults, LabResult{
			TestName:      coalesce(field(item, "test"), field(item, "lab_test")),
			RecommendedAt: coalesce(field(item, "recommended"), field(item, "lab_recommend")),
			PerformedAt:   coalesce(field(item, "date"), field(item, "lab_date")),
			Result:        coalesce(field(item, "result"), field(item, "lab_result")),
			FollowUp:      coalesce(field(item, "follow"), field(item, "lab_follow")),
			Origin:        "patient",
		})
	}

	sig := field(payload, "patient_signature")
	if sigObj, ok := payload["signature"].(map[string]interface{}); ok {
		sig = coalesce(field(sigObj, "value"), sig)
	}
	m.Audit = Audit{
		Signature: sig,
		Consent:   truthy(payload["consent"]),
		FinalAck:  truthy(payload["final_ack"]),
		ClientIP:  nullable(sub.Client.IP),
		UserAgent: nullable(sub.Client.UserAgent),
	}

	return m, nil
}

// field reads one key, mapping absent or empty-string values to nil so
// every missing datum renders as JSON null.
func field(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	if s, isStr := v.(string); isStr && s == "" {
		return nil
	}
	return v
}

func coalesce(vals ...interface{}) interface{} {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func submap(m map[string]interface{}, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]interface{})
	return sub
}

func sublist(m map[string]interface{}, key string) []interface{} {
	if m == nil {
		return []interface{}{}
	}
	if list, ok := m[key].([]interface{}); ok {
		return list
	}
	return []interface{}{}
}

// entries returns the map-shaped elements of a list field, dropping
// anything that is not an object.
func entries(m map[string]interface{}, key string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, item := range sublist(m, key) {
		if e, ok := item.(map[string]interface{}); ok {
			out = append(out, e)
		}
	}
	return out
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "yes" || t == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
