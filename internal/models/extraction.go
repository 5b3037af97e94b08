// Package models defines the extraction payload and merge provenance types.
package models

// FieldProvenance classifies how a merge changed (or didn't change) one field.
type FieldProvenance string

const (
	// ProvenanceNew means the baseline record had no value for the field.
	ProvenanceNew FieldProvenance = "new"
	// ProvenanceUpdated means the baseline had a different value.
	ProvenanceUpdated FieldProvenance = "updated"
	// ProvenanceUnchanged means the payload matched the baseline, or the
	// field was not present in the payload.
	ProvenanceUnchanged FieldProvenance = "unchanged"
)

// UnknownAnswer is the sentinel the extractor emits when a conversation
// touched a question but the answer was unclear. It is treated as absent
// by the reconciliation engine and never overwrites an existing answer.
const UnknownAnswer = "unknown"

// ExtractionPayload is the structured fact set derived from one finished
// conversation. It arrives as a single atomic unit and is immutable once
// received. Value fields are pointers so the engine can distinguish an
// explicit "no" from an answer that was never given.
type ExtractionPayload struct {
	PregnancyRelated   *PregnancyFacts   `json:"pregnancy_related,omitempty"`
	FamilyPersonal     *FamilyFacts      `json:"family_personal,omitempty"`
	Awareness          *AwarenessFacts   `json:"awareness,omitempty"`
	Insurance          *InsuranceFacts   `json:"insurance,omitempty"`
	Observations       *ObservationFacts `json:"observations,omitempty"`
	AdditionalInsights *InsightFacts     `json:"additional_insights,omitempty"`
}

// PregnancyFacts holds pregnancy-related answers.
type PregnancyFacts struct {
	CustomerEDD    *string  `json:"customer_edd"`
	FirstPregnancy *bool    `json:"first_pregnancy"`
	ScansDone      []string `json:"scans_done"`
	HavingTwins    *string  `json:"having_twins"`
}

// FamilyFacts holds family and personal answers.
type FamilyFacts struct {
	CustomerLocation    *string `json:"customer_location"`
	RelativesLivingWith *string `json:"relatives_living_with"`
	MotherOccupation    *string `json:"mother_occupation"`
	FatherOccupation    *string `json:"father_occupation"`
}

// AwarenessFacts holds brand-awareness answers.
type AwarenessFacts struct {
	ReferralSource  *string `json:"referral_source"`
	AwareOfPackages *bool   `json:"aware_of_packages"`
	DownloadedApp   *bool   `json:"downloaded_app"`
	BookingMethod   *string `json:"booking_method"`
}

// InsuranceFacts holds insurance answers.
type InsuranceFacts struct {
	InsuranceStatus *string `json:"insurance_status"`
}

// ObservationFacts holds facts the agent observed during the conversation.
type ObservationFacts struct {
	TransportMethod       *string `json:"transport_method"`
	MentionedCompetitors  *bool   `json:"mentioned_competitors"`
	InterestedInFacility  *bool   `json:"interested_in_facilities"`
	DoctorPreference      *string `json:"doctor_preference"`
	DoctorName            *string `json:"doctor_name"`
	PriceInquiry          *bool   `json:"price_inquiry"`
	AccompaniedBy         *string `json:"accompanied_by"`
	BringsOtherChildren   *string `json:"brings_other_children"`
	DoctorRemarkQuestions *bool   `json:"doctor_remark_questions"`
	GoingToNative         *bool   `json:"going_to_native"`
}

// InsightFacts holds free-form conversation insights.
type InsightFacts struct {
	ConversationSummary *string  `json:"conversation_summary"`
	KeyConcerns         []string `json:"key_concerns"`
	PositiveSignals     []string `json:"positive_signals"`
	PackageInterest     *string  `json:"package_interest"`
}

// MergeResult is the output of one reconciliation pass: the merged working
// draft plus per-field provenance. Provenance drives highlighting only.
type MergeResult struct {
	MergedFields map[string]interface{}     `json:"merged_fields"`
	Provenance   map[string]FieldProvenance `json:"provenance"`
	Ignored      []string                   `json:"ignored_categories,omitempty"`
}
