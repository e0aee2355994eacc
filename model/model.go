// Package model holds the records exchanged between the API, the guard layer
// and the contact store.
package model

import "time"

// Location is a device position attached to a recording or an alert.
// Address is optional and free text.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// EmergencyContact is a person notified when the owner triggers an alert.
type EmergencyContact struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Alert is a danger notification sent to every contact of an owner.
type Alert struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	SenderName   string    `json:"sender_name,omitempty"`
	Message      string    `json:"message"`
	Location     Location  `json:"location"`
	RecordingURL string    `json:"recording_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
