package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// csvHeader is the fixed export column order. Downstream spreadsheets key
// on these names, so the order is part of the contract.
var csvHeader = []string{
	"submissionId", "receivedAt", "status", "name", "phone", "dob", "age",
	"address", "maritalStatus", "occupation", "education", "height",
	"weight", "bmi", "bmiCategory", "firstCheckGA", "lmp", "edd",
	"eddSource", "gravida", "para", "abortus", "living", "riskFlags",
	"clientIp", "userAgent", "signature",
}

// ExportCSV writes the submissions as RFC 4180 CSV, one row per
// submission in the given order. Missing payload fields become empty
// cells; a row is emitted for every submission regardless of how sparse
// its payload is.
func ExportCSV(w io.Writer, subs []*Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, sub := range subs {
		if err := cw.Write(csvRow(sub)); err != nil {
			return fmt.Errorf("write csv row for %s: %w", sub.SubmissionID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(sub *Submission) []string {
	payload, err := sub.PayloadMap()
	if err != nil {
		payload = map[string]interface{}{}
	}
	meta, _ := payload["metadata"].(map[string]interface{})
	eddInfo, _ := meta["edd"].(map[string]interface{})
	totals, _ := meta["obstetricTotals"].(map[string]interface{})

	edd := cell(eddInfo["value"])
	if edd == "" {
		edd = cell(payload["edd"])
	}
	gravida := cell(totals["gravida"])
	if gravida == "" {
		gravida = cell(payload["gravida"])
	}
	signature := ""
	if sig, ok := payload["signature"].(map[string]interface{}); ok {
		signature = cell(sig["value"])
	}
	if signature == "" {
		signature = cell(payload["patient_signature"])
	}

	return []string{
		sub.SubmissionID,
		sub.ReceivedAt.UTC().Format(time.RFC3339),
		string(sub.Status),
		cell(payload["full_name"]),
		cell(payload["phone"]),
		cell(payload["dob"]),
		cell(payload["age"]),
		cell(payload["address"]),
		cell(payload["marital_status"]),
		cell(payload["occupation"]),
		cell(payload["education"]),
		cell(payload["height"]),
		cell(payload["weight"]),
		cell(payload["bmi"]),
		cell(meta["bmiCategory"]),
		cell(payload["first_check_ga"]),
		cell(payload["lmp"]),
		edd,
		cell(eddInfo["source"]),
		gravida,
		cell(totals["para"]),
		cell(totals["abortus"]),
		cell(totals["living"]),
		riskFlagsCell(meta),
		sub.Client.IP,
		sub.Client.UserAgent,
		signature,
	}
}

func riskFlagsCell(meta map[string]interface{}) string {
	raw, _ := meta["riskFlags"].([]interface{})
	flags := make([]string, 0, len(raw))
	for _, f := range raw {
		flags = append(flags, cell(f))
	}
	return strings.Join(flags, "; ")
}

// cell renders an arbitrary payload value for a CSV cell. JSON numbers
// print without an exponent or trailing zeros so ages and parity counts
// come out the way they were typed.
func cell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
