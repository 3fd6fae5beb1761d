package accounts

import "time"

// Account gives a registry identity a human name and a mailbox. The UUID is
// the identity used in the X-Account-ID header.
type Account struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountList struct {
	Items []Account `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}
