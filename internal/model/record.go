package model

// RecordSummary is the structured analysis of an uploaded medical document.
type RecordSummary struct {
	Type            string   `json:"type"`
	Date            string   `json:"date,omitempty"`
	PatientInfo     string   `json:"patient_info,omitempty"`
	KeyFindings     []string `json:"key_findings,omitempty"`
	Diagnosis       []string `json:"diagnosis,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Summary         string   `json:"summary"`
}

// Report is one uploaded document in a user's medical history. File names are
// unique within a user; uploading the same file again is refused.
type Report struct {
	FileName   string        `json:"file_name"`
	UploadTime Timestamp     `json:"upload_time"`
	Details    RecordSummary `json:"record_details"`
}

// MedicalRecord groups all reports uploaded by one WhatsApp user.
type MedicalRecord struct {
	ChatID  string   `json:"chat_id"`
	Reports []Report `json:"medical_reports"`
}
