package patients

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the minimal demographic record the assessment and consultation
// flows need. The authoritative clinical record lives elsewhere.
type Patient struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	DateOfBirth time.Time  `db:"date_of_birth" json:"date_of_birth"`
	Gender      string     `db:"gender" json:"gender,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Active      bool       `db:"active" json:"active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// AgeAt returns the patient's age in whole years at the given time.
func (p *Patient) AgeAt(t time.Time) int {
	age := t.Year() - p.DateOfBirth.Year()
	if t.YearDay() < p.DateOfBirth.YearDay() {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// Demographics is the subset of patient data used for norm selection.
type Demographics struct {
	Age    int    `json:"age"`
	Gender string `json:"gender,omitempty"`
}
