package models

import "time"

// BillStatus represents the payment state of a bill.
type BillStatus string

const (
	BillStatusUnpaid BillStatus = "unpaid"
	BillStatusPaid   BillStatus = "paid"
)

// Valid returns true when the status is a supported value.
func (s BillStatus) Valid() bool {
	switch s {
	case BillStatusUnpaid, BillStatusPaid:
		return true
	default:
		return false
	}
}

// BillStatusNone is the projection value for students without a bill in
// the requested period. It is never stored.
const BillStatusNone = "no_bill"

// PeriodLayout is the canonical billing period representation.
const PeriodLayout = "2006-01"

// PeriodOf formats the billing period covering the given instant.
func PeriodOf(t time.Time) string {
	return t.UTC().Format(PeriodLayout)
}

// ValidPeriod reports whether raw parses as a YYYY-MM period.
func ValidPeriod(raw string) bool {
	_, err := time.Parse(PeriodLayout, raw)
	return err == nil
}

// Bill represents one student's obligation for one billing period.
type Bill struct {
	ID         string     `db:"id" json:"id"`
	StudentID  string     `db:"student_id" json:"student_id"`
	Amount     float64    `db:"amount" json:"amount"`
	Period     string     `db:"period" json:"period"`
	Status     BillStatus `db:"status" json:"status"`
	LastPaidAt *time.Time `db:"last_paid_at" json:"last_paid_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentBillStatus joins a student with their bill state for a period.
type StudentBillStatus struct {
	StudentID   string  `db:"student_id" json:"student_id"`
	StudentName string  `db:"student_name" json:"student_name"`
	Class       string  `db:"class" json:"class"`
	Fee         float64 `db:"fee" json:"fee"`
	Period      string  `db:"period" json:"period"`
	BillID      *string `db:"bill_id" json:"bill_id,omitempty"`
	BillStatus  string  `db:"bill_status" json:"bill_status"`
}

// BillingStats summarises the current period for dashboard consumption.
type BillingStats struct {
	Period      string `db:"period" json:"period"`
	PaidCount   int    `db:"paid_count" json:"paid_count"`
	UnpaidCount int    `db:"unpaid_count" json:"unpaid_count"`
	Unbilled    int    `db:"unbilled" json:"unbilled"`
}
