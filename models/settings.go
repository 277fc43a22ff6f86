package models

// SettingKey is a feature-defined settings identifier. Only keys known to
// this build are reconciled; unknown keys received from newer clients are
// ignored without error.
type SettingKey string

const (
	SettingEmailProtectionGeneratedAddress SettingKey = "email_protection_generated_address"
	SettingDefaultSearchSuggestions        SettingKey = "default_search_suggestions"
	SettingHomePageURL                     SettingKey = "home_page_url"
	SettingFireproofDomains                SettingKey = "fireproof_domains"
)

// KnownSettingKeys lists every key the flat reconciliation strategy accepts.
var KnownSettingKeys = []SettingKey{
	SettingEmailProtectionGeneratedAddress,
	SettingDefaultSearchSuggestions,
	SettingHomePageURL,
	SettingFireproofDomains,
}

// Setting is the flat-shaped local record: a stable key with an optional
// string value. A nil Value is a soft deletion; the row survives so the
// tombstone can propagate to other devices.
type Setting struct {
	Key   SettingKey `json:"key"`
	Value *string    `json:"value,omitempty"`
}

// IsDeleted reports whether the setting is soft-deleted.
func (s Setting) IsDeleted() bool {
	return s.Value == nil
}

// SettingPayload is the decrypted wire payload of one settings record.
type SettingPayload struct {
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}
