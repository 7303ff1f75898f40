package workers

import "time"

type Worker struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	WorkerNumber string     `json:"workerNumber"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone"`
	BankAccount  string     `json:"bankAccount,omitempty"`
	Currency     string     `json:"currency"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)
