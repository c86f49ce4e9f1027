package models

import (
	"slices"
	"time"
)

// ServerType selects how an account's principal and calendar-home URLs are found.
type ServerType string

const (
	ServerTypeRustical  ServerType = "rustical"
	ServerTypeRadicale  ServerType = "radicale"
	ServerTypeBaikal    ServerType = "baikal"
	ServerTypeNextcloud ServerType = "nextcloud"
	ServerTypeGeneric   ServerType = "generic"
)

type Account struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ServerURL  string     `json:"server_url"`
	Username   string     `json:"username"`
	Password   string     `json:"password,omitempty"`
	Token      string     `json:"token,omitempty"`
	ServerType ServerType `json:"server_type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Redacted returns a copy without credentials, suitable for export and display.
func (a Account) Redacted() Account {
	a.Password = ""
	a.Token = ""
	return a
}

type Calendar struct {
	// ID is the absolute URL of the calendar collection.
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	DisplayName string    `json:"display_name"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	CTag        string    `json:"ctag,omitempty"`
	SyncToken   string    `json:"sync_token,omitempty"`
	Components  []string  `json:"components,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SupportsTasks reports whether the collection can hold VTODO objects. An empty
// component set means the server did not advertise one, which is treated as "any".
func (c Calendar) SupportsTasks() bool {
	return len(c.Components) == 0 || slices.Contains(c.Components, "VTODO")
}

// PendingDeletion is a locally deleted task whose server copy has not been
// confirmed removed yet.
type PendingDeletion struct {
	UID        string    `json:"uid"`
	Href       string    `json:"href"`
	ETag       string    `json:"etag,omitempty"`
	AccountID  string    `json:"account_id"`
	CalendarID string    `json:"calendar_id"`
	CreatedAt  time.Time `json:"created_at"`
}
