package models

import "time"

// Student represents a learner enrolled at the school.
type Student struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Phone         string    `db:"phone" json:"phone"`
	Course        string    `db:"course" json:"course"`
	GuardianName  string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone string    `db:"guardian_phone" json:"guardian_phone"`
	Class         string    `db:"class" json:"class"`
	Fee           float64   `db:"fee" json:"fee"`
	RegisteredAt  time.Time `db:"registered_at" json:"registered_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Class     string
	Course    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CourseCount aggregates enrolment per course.
type CourseCount struct {
	Course string `db:"course" json:"course"`
	Count  int    `db:"count" json:"count"`
}

// RosterStats summarises the directory for dashboard consumption.
type RosterStats struct {
	StudentCount int           `json:"student_count"`
	TotalFee     float64       `json:"total_fee"`
	Courses      []CourseCount `json:"courses"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
