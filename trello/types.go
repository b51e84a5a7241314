package trello

import "time"

type Board struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
	URL    string `json:"url,omitempty"`
}

type List struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

type Card struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Desc             string     `json:"desc,omitempty"`
	Closed           bool       `json:"closed"`
	IDList           string     `json:"idList,omitempty"`
	IDBoard          string     `json:"idBoard,omitempty"`
	ShortURL         string     `json:"shortUrl,omitempty"`
	DateLastActivity *time.Time `json:"dateLastActivity,omitempty"`
}

type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
}

// ValidationResult is the outcome of checking a credential pair
// against the live API. Valid=false with a non-empty Reason is a
// rejected pair; an error from ValidateCredential itself means the
// check could not be performed at all.
type ValidationResult struct {
	Valid        bool
	AccountLabel string
	Reason       string
}
