package reconcile

import (
	"reflect"
	"testing"

	"github.com/careops/carepipe/internal/models"
)

func strPtr(s string) *string { return &s }
func bPtr(b bool) *bool       { return &b }

func TestMergeClassifiesNewUpdatedUnchanged(t *testing.T) {
	baseline := &models.Patient{
		PatientID:        "pt_1",
		HavingTwins:      "no",
		CustomerLocation: "Indiranagar",
	}
	payload := models.ExtractionPayload{
		PregnancyRelated: &models.PregnancyFacts{
			CustomerEDD: strPtr("2025-09-12"), // baseline empty
			HavingTwins: strPtr("no"),         // matches baseline
		},
		FamilyPersonal: &models.FamilyFacts{
			CustomerLocation: strPtr("Whitefield"), // differs from baseline
		},
	}

	result := Merge(baseline, payload)

	if got := result.Provenance["customer_edd"]; got != models.ProvenanceNew {
		t.Errorf("customer_edd: expected new, got %s", got)
	}
	if got := result.Provenance["having_twins"]; got != models.ProvenanceUnchanged {
		t.Errorf("having_twins: expected unchanged, got %s", got)
	}
	if got := result.Provenance["customer_location"]; got != models.ProvenanceUpdated {
		t.Errorf("customer_location: expected updated, got %s", got)
	}

	if got := result.MergedFields["customer_edd"]; got != "2025-09-12" {
		t.Errorf("expected merged customer_edd, got %v", got)
	}
	if _, present := result.MergedFields["having_twins"]; present {
		t.Error("unchanged field should be omitted from merged output")
	}
	if got := result.MergedFields["customer_location"]; got != "Whitefield" {
		t.Errorf("expected merged customer_location, got %v", got)
	}
}

func TestMergeAbsentFieldsNeverClobber(t *testing.T) {
	baseline := &models.Patient{
		PatientID:       "pt_1",
		CustomerEDD:     "2025-09-12",
		InsuranceStatus: "covered",
	}
	// Empty payload: nothing proposed, nothing touched.
	result := Merge(baseline, models.ExtractionPayload{})
	if len(result.MergedFields) != 0 {
		t.Errorf("expected no merged fields, got %v", result.MergedFields)
	}
	if len(result.Provenance) != 0 {
		t.Errorf("expected no provenance entries, got %v", result.Provenance)
	}
}

func TestMergeUnknownSentinelTreatedAsAbsent(t *testing.T) {
	baseline := &models.Patient{
		PatientID:   "pt_1",
		CustomerEDD: "2025-09-12",
	}
	payload := models.ExtractionPayload{
		PregnancyRelated: &models.PregnancyFacts{
			CustomerEDD: strPtr(models.UnknownAnswer),
			HavingTwins: strPtr(models.UnknownAnswer),
		},
	}

	result := Merge(baseline, payload)
	if len(result.MergedFields) != 0 {
		t.Errorf("unknown sentinel should never merge, got %v", result.MergedFields)
	}
}

func TestMergeFalseBooleanIsPresent(t *testing.T) {
	baseline := &models.Patient{PatientID: "pt_1"}
	payload := models.ExtractionPayload{
		Awareness: &models.AwarenessFacts{
			AwareOfPackages: bPtr(false),
		},
	}

	result := Merge(baseline, payload)
	if got := result.Provenance["aware_of_packages"]; got != models.ProvenanceNew {
		t.Fatalf("explicit false should be a present value, got provenance %s", got)
	}
	if got := result.MergedFields["aware_of_packages"]; got != false {
		t.Errorf("expected merged false, got %v", got)
	}
}

func TestMergeScanSetOrderInsensitive(t *testing.T) {
	baseline := &models.Patient{
		PatientID: "pt_1",
		ScansDone: []string{"anomaly", "nt_scan"},
	}
	payload := models.ExtractionPayload{
		PregnancyRelated: &models.PregnancyFacts{
			ScansDone: []string{"nt_scan", "anomaly"},
		},
	}

	result := Merge(baseline, payload)
	if got := result.Provenance["scans_done"]; got != models.ProvenanceUnchanged {
		t.Errorf("same scan set in different order should be unchanged, got %s", got)
	}
}

func TestMergeIdempotent(t *testing.T) {
	baseline := &models.Patient{
		PatientID:        "pt_1",
		CustomerLocation: "Indiranagar",
	}
	payload := models.ExtractionPayload{
		FamilyPersonal: &models.FamilyFacts{
			CustomerLocation: strPtr("Whitefield"),
		},
		Insurance: &models.InsuranceFacts{
			InsuranceStatus: strPtr("covered"),
		},
	}

	first := Merge(baseline, payload)
	applied := ApplyMerge(baseline, first.MergedFields)

	// Replaying the same payload against the applied record proposes
	// nothing further.
	second := Merge(applied, payload)
	if len(second.MergedFields) != 0 {
		t.Errorf("expected idempotent replay, got merged %v", second.MergedFields)
	}
	for field, prov := range second.Provenance {
		if prov != models.ProvenanceUnchanged {
			t.Errorf("field %s: expected unchanged on replay, got %s", field, prov)
		}
	}
}

func TestApplyMergeOverlaysBaseline(t *testing.T) {
	baseline := &models.Patient{
		PatientID:        "pt_1",
		Name:             "Asha Rao",
		CustomerLocation: "Indiranagar",
	}
	merged := map[string]interface{}{
		"customer_location": "Whitefield",
		"first_pregnancy":   true,
		"scans_done":        []string{"nt_scan"},
	}

	next := ApplyMerge(baseline, merged)
	if next.CustomerLocation != "Whitefield" {
		t.Errorf("expected overlaid location, got %q", next.CustomerLocation)
	}
	if next.FirstPregnancy == nil || !*next.FirstPregnancy {
		t.Error("expected first_pregnancy true")
	}
	if !reflect.DeepEqual(next.ScansDone, []string{"nt_scan"}) {
		t.Errorf("expected scans overlaid, got %v", next.ScansDone)
	}
	// Baseline is untouched.
	if baseline.CustomerLocation != "Indiranagar" {
		t.Error("ApplyMerge must not mutate the baseline")
	}
	if next.Name != "Asha Rao" {
		t.Errorf("unrelated fields must carry over, got %q", next.Name)
	}
}

func TestDecodePayloadIgnoresUnknownCategory(t *testing.T) {
	raw := []byte(`{
		"pregnancy_related": {"customer_edd": "2025-09-12"},
		"mystery_category": {"foo": "bar"}
	}`)

	payload, ignored, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.PregnancyRelated == nil || payload.PregnancyRelated.CustomerEDD == nil {
		t.Fatal("expected pregnancy category decoded")
	}
	if *payload.PregnancyRelated.CustomerEDD != "2025-09-12" {
		t.Errorf("unexpected EDD %q", *payload.PregnancyRelated.CustomerEDD)
	}
	if !reflect.DeepEqual(ignored, []string{"mystery_category"}) {
		t.Errorf("expected mystery_category ignored, got %v", ignored)
	}
}

func TestDecodePayloadIgnoresMalformedCategory(t *testing.T) {
	raw := []byte(`{
		"insurance": "not an object",
		"awareness": {"referral_source": "social_media"}
	}`)

	payload, ignored, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.Awareness == nil || payload.Awareness.ReferralSource == nil {
		t.Fatal("expected awareness category decoded")
	}
	if !reflect.DeepEqual(ignored, []string{"insurance"}) {
		t.Errorf("expected insurance ignored, got %v", ignored)
	}
}

func TestDecodePayloadDropsMalformedCategoryEntirely(t *testing.T) {
	// One bad field in a category drops the whole category, including
	// the fields that decoded cleanly before the bad one.
	raw := []byte(`{
		"pregnancy_related": {"customer_edd": 5, "having_twins": "yes"},
		"awareness": {"referral_source": "social_media"}
	}`)

	payload, ignored, err := DecodePayload(raw)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if payload.PregnancyRelated != nil {
		t.Errorf("expected pregnancy category dropped, got %+v", payload.PregnancyRelated)
	}
	if payload.Awareness == nil || payload.Awareness.ReferralSource == nil {
		t.Fatal("expected awareness category decoded")
	}
	if !reflect.DeepEqual(ignored, []string{"pregnancy_related"}) {
		t.Errorf("expected pregnancy_related ignored, got %v", ignored)
	}
}

func TestDecodePayloadRejectsNonObject(t *testing.T) {
	if _, _, err := DecodePayload([]byte(`[1,2,3]`)); err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
