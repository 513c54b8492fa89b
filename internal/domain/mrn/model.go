package mrn

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the clinical stream a medical record belongs to. The set is
// closed: each category owns its own MR-ID counter.
type Category string

const (
	CategoryObstetri   Category = "obstetri"
	CategoryGynRepro   Category = "gyn_repro"
	CategoryGynSpecial Category = "gyn_special"
)

var prefixes = map[Category]string{
	CategoryObstetri:   "MROBS",
	CategoryGynRepro:   "MRGPR",
	CategoryGynSpecial: "MRGPS",
}

// Categories returns the fixed category set in stable order.
func Categories() []Category {
	return []Category{CategoryObstetri, CategoryGynRepro, CategoryGynSpecial}
}

// Valid reports whether c is a member of the fixed category set.
func (c Category) Valid() bool {
	_, ok := prefixes[c]
	return ok
}

// Prefix returns the MR-ID prefix for the category ("" for invalid input).
func (c Category) Prefix() string {
	return prefixes[c]
}

// ParseCategory normalizes and validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &InvalidCategoryError{Category: s}
	}
	return c, nil
}

// MrIDPattern matches every identifier this package can allocate.
var MrIDPattern = regexp.MustCompile(`^(MROBS|MRGPR|MRGPS)\d{4}$`)

// FormatMrID renders an allocated (category, sequence) pair as an MR ID,
// e.g. ("obstetri", 1) -> "MROBS0001".
func FormatMrID(c Category, sequence int) string {
	return fmt.Sprintf("%s%04d", c.Prefix(), sequence)
}

// InvalidCategoryError reports a category outside the fixed set. The caller
// supplied bad input; retrying without fixing it cannot succeed.
type InvalidCategoryError struct {
	Category string
}

func (e *InvalidCategoryError) Error() string {
	valid := make([]string, 0, len(prefixes))
	for _, c := range Categories() {
		valid = append(valid, string(c))
	}
	return fmt.Sprintf("invalid MR category: %q (must be one of: %s)", e.Category, strings.Join(valid, ", "))
}

// ErrNotFound is returned when no clinic record matches the lookup key.
var ErrNotFound = errors.New("mrn: record not found")

// Allocation is the result of drawing the next identifier for a category.
type Allocation struct {
	MrID     string   `json:"mr_id"`
	Category Category `json:"category"`
	Sequence int      `json:"sequence"`
}

// Counter mirrors one row of the mr_counters table.
type Counter struct {
	Category        Category  `db:"category" json:"category"`
	CurrentSequence int       `db:"current_sequence" json:"current_sequence"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Record maps to the clinic_records table. A record references exactly one
// MR ID and patient, and at most one appointment.
type Record struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MrID          string    `db:"mr_id" json:"mr_id"`
	Category      Category  `db:"mr_category" json:"mr_category"`
	Sequence      int       `db:"mr_sequence" json:"mr_sequence"`
	PatientID     string    `db:"patient_id" json:"patient_id"`
	AppointmentID *int64    `db:"appointment_id" json:"appointment_id,omitempty"`
	FolderPath    string    `db:"folder_path" json:"folder_path"`
	Status        string    `db:"status" json:"status"`
	CreatedBy     *int64    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// CategoryStats aggregates clinic records per category alongside the live
// counter value.
type CategoryStats struct {
	Category        Category `json:"category"`
	TotalRecords    int      `json:"total_records"`
	DraftCount      int      `json:"draft_count"`
	FinalizedCount  int      `json:"finalized_count"`
	HighestSequence int      `json:"highest_sequence"`
	CounterSequence int      `json:"counter_sequence"`
}
