// Package reconcile implements the field reconciliation engine.
//
// Given a baseline patient record and an extraction payload derived from a
// finished conversation, it produces a merged working draft plus a
// per-field provenance tag. It only ever reads a snapshot and proposes a
// successor; it never writes to the store.
package reconcile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/careops/carepipe/internal/models"
)

// DecodePayload parses a raw extraction payload, ignoring malformed or
// unrecognized categories instead of failing the whole merge. The returned
// slice names the categories that were dropped.
func DecodePayload(raw []byte) (models.ExtractionPayload, []string, error) {
	var categories map[string]json.RawMessage
	if err := json.Unmarshal(raw, &categories); err != nil {
		return models.ExtractionPayload{}, nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}

	var payload models.ExtractionPayload
	var ignored []string
	for name, body := range categories {
		// Decode into a local first so a malformed category leaves no
		// partially populated fields behind in the payload.
		var err error
		switch name {
		case "pregnancy_related":
			var c *models.PregnancyFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.PregnancyRelated = c
			}
		case "family_personal":
			var c *models.FamilyFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.FamilyPersonal = c
			}
		case "awareness":
			var c *models.AwarenessFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.Awareness = c
			}
		case "insurance":
			var c *models.InsuranceFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.Insurance = c
			}
		case "observations":
			var c *models.ObservationFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.Observations = c
			}
		case "additional_insights":
			var c *models.InsightFacts
			if err = json.Unmarshal(body, &c); err == nil {
				payload.AdditionalInsights = c
			}
		default:
			slog.Warn("DecodePayload: unrecognized category ignored", "category", name)
			ignored = append(ignored, name)
			continue
		}
		if err != nil {
			// Partial extraction is preferable to total failure.
			slog.Warn("DecodePayload: malformed category ignored", "category", name, "error", err)
			ignored = append(ignored, name)
		}
	}
	sort.Strings(ignored)
	return payload, ignored, nil
}

// Merge reconciles an extraction payload against the baseline record.
// Fields absent from the payload never clobber an existing answer; fields
// equal to the baseline are tagged Unchanged and omitted from the merged
// output so the operator's current edit is left untouched. Provenance is
// recomputed fresh on every call.
func Merge(baseline *models.Patient, payload models.ExtractionPayload) models.MergeResult {
	result := models.MergeResult{
		MergedFields: make(map[string]interface{}),
		Provenance:   make(map[string]models.FieldProvenance),
	}
	base := baselineFields(baseline)

	for field, candidate := range candidateFields(payload) {
		existing, present := base[field]
		switch {
		case !present:
			result.Provenance[field] = models.ProvenanceNew
			result.MergedFields[field] = candidate
		case valuesEqual(existing, candidate):
			result.Provenance[field] = models.ProvenanceUnchanged
		default:
			result.Provenance[field] = models.ProvenanceUpdated
			result.MergedFields[field] = candidate
		}
	}

	slog.Debug("Merge: reconciliation complete",
		"candidates", len(result.Provenance), "merged", len(result.MergedFields))
	return result
}

// candidateFields flattens the payload into field→value pairs, skipping
// absent values. A false boolean is a present value; the extractor's
// "unknown" sentinel is treated as absent.
func candidateFields(p models.ExtractionPayload) map[string]interface{} {
	out := make(map[string]interface{})

	if c := p.PregnancyRelated; c != nil {
		putString(out, "customer_edd", c.CustomerEDD)
		putBool(out, "first_pregnancy", c.FirstPregnancy)
		putStringSet(out, "scans_done", c.ScansDone)
		putString(out, "having_twins", c.HavingTwins)
	}
	if c := p.FamilyPersonal; c != nil {
		putString(out, "customer_location", c.CustomerLocation)
		putString(out, "relatives_living_with", c.RelativesLivingWith)
		putString(out, "mother_occupation", c.MotherOccupation)
		putString(out, "father_occupation", c.FatherOccupation)
	}
	if c := p.Awareness; c != nil {
		putString(out, "referral_source", c.ReferralSource)
		putBool(out, "aware_of_packages", c.AwareOfPackages)
		putBool(out, "downloaded_app", c.DownloadedApp)
		putString(out, "booking_method", c.BookingMethod)
	}
	if c := p.Insurance; c != nil {
		putString(out, "insurance_status", c.InsuranceStatus)
	}
	if c := p.Observations; c != nil {
		putString(out, "transport_method", c.TransportMethod)
		putBool(out, "mentioned_competitors", c.MentionedCompetitors)
		putBool(out, "interested_in_facilities", c.InterestedInFacility)
		putString(out, "doctor_preference", c.DoctorPreference)
		putString(out, "doctor_name", c.DoctorName)
		putBool(out, "price_inquiry", c.PriceInquiry)
		putString(out, "accompanied_by", c.AccompaniedBy)
		putString(out, "brings_other_children", c.BringsOtherChildren)
		putBool(out, "doctor_remark_questions", c.DoctorRemarkQuestions)
		putBool(out, "going_to_native", c.GoingToNative)
	}
	if c := p.AdditionalInsights; c != nil {
		putString(out, "package_interest", c.PackageInterest)
	}
	return out
}

// baselineFields flattens the record into field→value pairs, omitting
// fields with no value.
func baselineFields(p *models.Patient) map[string]interface{} {
	out := make(map[string]interface{})
	if p == nil {
		return out
	}
	strings := map[string]string{
		"customer_edd":          p.CustomerEDD,
		"having_twins":          p.HavingTwins,
		"customer_location":     p.CustomerLocation,
		"relatives_living_with": p.RelativesLivingWith,
		"mother_occupation":     p.MotherOccupation,
		"father_occupation":     p.FatherOccupation,
		"referral_source":       p.ReferralSource,
		"booking_method":        p.BookingMethod,
		"insurance_status":      p.InsuranceStatus,
		"transport_method":      p.TransportMethod,
		"doctor_preference":     p.DoctorPreference,
		"doctor_name":           p.DoctorName,
		"accompanied_by":        p.AccompaniedBy,
		"brings_other_children": p.BringsOtherChildren,
		"package_interest":      p.PackageInterest,
	}
	for field, v := range strings {
		if v != "" {
			out[field] = v
		}
	}
	bools := map[string]*bool{
		"first_pregnancy":          p.FirstPregnancy,
		"aware_of_packages":        p.AwareOfPackages,
		"downloaded_app":           p.DownloadedApp,
		"mentioned_competitors":    p.MentionedCompetitors,
		"interested_in_facilities": p.InterestedInFacility,
		"price_inquiry":            p.PriceInquiry,
		"doctor_remark_questions":  p.DoctorRemarkQuestions,
		"going_to_native":          p.GoingToNative,
	}
	for field, v := range bools {
		if v != nil {
			out[field] = *v
		}
	}
	if len(p.ScansDone) > 0 {
		out["scans_done"] = p.ScansDone
	}
	return out
}

func putString(out map[string]interface{}, field string, v *string) {
	if v == nil || *v == "" || *v == models.UnknownAnswer {
		return
	}
	out[field] = *v
}

func putBool(out map[string]interface{}, field string, v *bool) {
	if v == nil {
		return
	}
	out[field] = *v
}

func putStringSet(out map[string]interface{}, field string, v []string) {
	if len(v) == 0 {
		return
	}
	out[field] = v
}

// valuesEqual compares a baseline value against a candidate. String
// collections are compared by collection identity, not element order.
func valuesEqual(a, b interface{}) bool {
	as, aok := a.([]string)
	bs, bok := b.([]string)
	if aok || bok {
		if !aok || !bok {
			return false
		}
		return sameSet(as, bs)
	}
	return a == b
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		if seen[v] == 0 {
			return false
		}
		seen[v]--
	}
	return true
}

// ApplyMerge overlays the merged fields onto a copy of the baseline,
// producing the proposed successor record for saving.
func ApplyMerge(baseline *models.Patient, merged map[string]interface{}) *models.Patient {
	next := *baseline
	for field, value := range merged {
		switch field {
		case "customer_edd":
			next.CustomerEDD = value.(string)
		case "first_pregnancy":
			next.FirstPregnancy = boolPtr(value)
		case "scans_done":
			next.ScansDone = value.([]string)
		case "having_twins":
			next.HavingTwins = value.(string)
		case "customer_location":
			next.CustomerLocation = value.(string)
		case "relatives_living_with":
			next.RelativesLivingWith = value.(string)
		case "mother_occupation":
			next.MotherOccupation = value.(string)
		case "father_occupation":
			next.FatherOccupation = value.(string)
		case "referral_source":
			next.ReferralSource = value.(string)
		case "aware_of_packages":
			next.AwareOfPackages = boolPtr(value)
		case "downloaded_app":
			next.DownloadedApp = boolPtr(value)
		case "booking_method":
			next.BookingMethod = value.(string)
		case "insurance_status":
			next.InsuranceStatus = value.(string)
		case "transport_method":
			next.TransportMethod = value.(string)
		case "mentioned_competitors":
			next.MentionedCompetitors = boolPtr(value)
		case "interested_in_facilities":
			next.InterestedInFacility = boolPtr(value)
		case "doctor_preference":
			next.DoctorPreference = value.(string)
		case "doctor_name":
			next.DoctorName = value.(string)
		case "price_inquiry":
			next.PriceInquiry = boolPtr(value)
		case "accompanied_by":
			next.AccompaniedBy = value.(string)
		case "brings_other_children":
			next.BringsOtherChildren = value.(string)
		case "doctor_remark_questions":
			next.DoctorRemarkQuestions = boolPtr(value)
		case "going_to_native":
			next.GoingToNative = boolPtr(value)
		case "package_interest":
			next.PackageInterest = value.(string)
		}
	}
	return &next
}

func boolPtr(v interface{}) *bool {
	b := v.(bool)
	return &b
}
