package model

import "time"

// Email is a mailbox message reduced to what the parsers need.
type Email struct {
	Date    time.Time
	ID      string
	Subject string
	From    string
	To      string
	Body    string // Plain-text body
}
