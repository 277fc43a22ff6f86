package models

import "time"

// Tab is one open tab of a device.
type Tab struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// DeviceTabs is the list-shaped local record: the ordered open-tab list of
// one device, keyed by device identifier. A record for another device is
// replaced wholesale when that device uploads a newer list.
type DeviceTabs struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	Tabs       []Tab  `json:"tabs,omitempty"`

	// ModifiedAt is the unacknowledged local modification time; set only
	// for the local device's own list.
	ModifiedAt *time.Time `json:"modified_at,omitempty"`

	// Deleted marks a device list that was tombstoned (device removed
	// from the account).
	Deleted bool `json:"deleted,omitempty"`
}

// Clone returns a deep copy of the device tab list.
func (d *DeviceTabs) Clone() *DeviceTabs {
	c := *d
	if d.Tabs != nil {
		c.Tabs = append([]Tab(nil), d.Tabs...)
	}
	if d.ModifiedAt != nil {
		t := *d.ModifiedAt
		c.ModifiedAt = &t
	}
	return &c
}

// TabsPayload is the decrypted wire payload of one tabs record. The record
// identifier on the wire is the device id.
type TabsPayload struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name,omitempty"`
	Tabs       []Tab  `json:"tabs,omitempty"`
}
