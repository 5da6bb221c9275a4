package model

import "strings"

// Defaults applied when the extraction model leaves a field unclear.
const (
	DefaultDosage    = "1 tablet"
	DefaultFrequency = "twice daily"
)

// Medicine is one entry extracted from a prescription.
type Medicine struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
}

// WithDefaults fills in the dosage and frequency fallbacks for entries the
// extraction left blank.
func (m Medicine) WithDefaults() Medicine {
	if strings.TrimSpace(m.Dosage) == "" {
		m.Dosage = DefaultDosage
	}
	if strings.TrimSpace(m.Frequency) == "" {
		m.Frequency = DefaultFrequency
	}
	return m
}

// Prescription is the structured result of analyzing prescription text.
type Prescription struct {
	Medicines []Medicine `json:"medicines"`
	Notes     string     `json:"notes"`
}
