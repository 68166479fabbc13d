package store

import (
	"time"

	"github.com/flanksource/certify/api"
	"github.com/samber/lo"
)

// Status is the progress of a student through a course.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusBlocked    Status = "blocked"
)

// DateFormat is how completion dates are printed on certificates.
const DateFormat = "1/2/2006"

// Student is a certificate recipient.
type Student struct {
	PublicID       string            `json:"publicId" yaml:"publicId"`
	Name           string            `json:"name" yaml:"name"`
	AmharicName    string            `json:"amharicName,omitempty" yaml:"amharicName,omitempty"`
	Email          string            `json:"email,omitempty" yaml:"email,omitempty"`
	Course         string            `json:"course" yaml:"course"`
	CourseName     string            `json:"courseName,omitempty" yaml:"courseName,omitempty"`
	Batch          string            `json:"batch" yaml:"batch"`
	Status         Status            `json:"status" yaml:"status"`
	Instructor     string            `json:"instructor,omitempty" yaml:"instructor,omitempty"`
	CompletionDate *time.Time        `json:"completionDate,omitempty" yaml:"completionDate,omitempty"`
	AmharicDate    string            `json:"amharicDate,omitempty" yaml:"amharicDate,omitempty"`
	CustomFields   map[string]string `json:"customFields,omitempty" yaml:"customFields,omitempty"`
}

// Eligible is true once the student may download a certificate.
func (s Student) Eligible() bool {
	return s.Status == StatusComplete
}

// PayloadFor builds the field values of a student's certificate. PNG and PDF share it.
// Custom fields override the standard ones. A missing completion date prints now.
func PayloadFor(s Student, now time.Time) api.Payload {
	date := lo.FromPtrOr(s.CompletionDate, now)
	payload := api.Payload{
		"name":        s.Name,
		"amharicName": s.AmharicName,
		"course":      lo.Ternary(s.CourseName != "", s.CourseName, s.Course),
		"date":        date.Format(DateFormat),
		"amharicDate": s.AmharicDate,
		"instructor":  s.Instructor,
		"batch":       s.Batch,
	}
	return payload.Merge(s.CustomFields)
}
