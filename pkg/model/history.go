package model

import "time"

// History actions recorded by the inventory API.
const (
	ActionCreated    = "device_created"
	ActionUpdated    = "device_updated"
	ActionCheckedOut = "device_checked_out"
	ActionCheckedIn  = "device_checked_in"
)

// HistoryEntry is one recorded change to a device.
type HistoryEntry struct {
	ID        string    `json:"id" dynamodbav:"ID"`
	DeviceID  string    `json:"device_id" dynamodbav:"DeviceID"`
	User      string    `json:"user" dynamodbav:"User"`
	Action    string    `json:"action" dynamodbav:"Action"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"Timestamp"`
}
