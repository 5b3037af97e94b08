package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/careops/carepipe/internal/models"
)

// patientColumns whitelists the updatable patient columns. Update requests
// carry arbitrary field names; anything not listed here is skipped.
var patientColumns = map[string]bool{
	"name": true, "phone_number": true, "email": true,
	"customer_edd": true, "first_pregnancy": true, "scans_done": true,
	"having_twins": true, "customer_location": true, "relatives_living_with": true,
	"mother_occupation": true, "father_occupation": true, "referral_source": true,
	"aware_of_packages": true, "downloaded_app": true, "booking_method": true,
	"insurance_status": true, "transport_method": true, "mentioned_competitors": true,
	"interested_in_facilities": true, "doctor_preference": true, "doctor_name": true,
	"price_inquiry": true, "accompanied_by": true, "brings_other_children": true,
	"doctor_remark_questions": true, "going_to_native": true, "package_interest": true,
	"lead_status": true, "booking_status": true, "follow_up_date": true,
	"notes": true, "created_by": true,
}

// filterPatientFields drops non-whitelisted fields and encodes values for
// SQL binding. Collections are stored as JSON text.
func filterPatientFields(fields map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(fields))
	for field, value := range fields {
		if !patientColumns[field] {
			slog.Warn("store: skipping non-whitelisted field", "field", field)
			continue
		}
		switch v := value.(type) {
		case nil, string, bool, float64, int, int64:
			out[field] = value
		case []string:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", field, err)
			}
			out[field] = string(encoded)
		case []interface{}:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %s: %w", field, err)
			}
			out[field] = string(encoded)
		default:
			return nil, fmt.Errorf("unsupported value type for field %s", field)
		}
	}
	return out, nil
}

// applyPatientFields mutates a patient with the given field updates.
// Used by the in-memory store; the SQL backends update columns directly.
func applyPatientFields(p *models.Patient, fields map[string]interface{}) {
	for field, value := range fields {
		switch field {
		case "name":
			p.Name = asString(value)
		case "phone_number":
			p.PhoneNumber = asString(value)
		case "email":
			p.Email = asString(value)
		case "customer_edd":
			p.CustomerEDD = asString(value)
		case "first_pregnancy":
			p.FirstPregnancy = asBoolPtr(value)
		case "scans_done":
			p.ScansDone = asStringSlice(value)
		case "having_twins":
			p.HavingTwins = asString(value)
		case "customer_location":
			p.CustomerLocation = asString(value)
		case "relatives_living_with":
			p.RelativesLivingWith = asString(value)
		case "mother_occupation":
			p.MotherOccupation = asString(value)
		case "father_occupation":
			p.FatherOccupation = asString(value)
		case "referral_source":
			p.ReferralSource = asString(value)
		case "aware_of_packages":
			p.AwareOfPackages = asBoolPtr(value)
		case "downloaded_app":
			p.DownloadedApp = asBoolPtr(value)
		case "booking_method":
			p.BookingMethod = asString(value)
		case "insurance_status":
			p.InsuranceStatus = asString(value)
		case "transport_method":
			p.TransportMethod = asString(value)
		case "mentioned_competitors":
			p.MentionedCompetitors = asBoolPtr(value)
		case "interested_in_facilities":
			p.InterestedInFacility = asBoolPtr(value)
		case "doctor_preference":
			p.DoctorPreference = asString(value)
		case "doctor_name":
			p.DoctorName = asString(value)
		case "price_inquiry":
			p.PriceInquiry = asBoolPtr(value)
		case "accompanied_by":
			p.AccompaniedBy = asString(value)
		case "brings_other_children":
			p.BringsOtherChildren = asString(value)
		case "doctor_remark_questions":
			p.DoctorRemarkQuestions = asBoolPtr(value)
		case "going_to_native":
			p.GoingToNative = asBoolPtr(value)
		case "package_interest":
			p.PackageInterest = asString(value)
		case "lead_status":
			p.LeadStatus = asString(value)
		case "booking_status":
			p.BookingStatus = asString(value)
		case "follow_up_date":
			p.FollowUpDate = asString(value)
		case "notes":
			p.Notes = asString(value)
		default:
			slog.Warn("store: skipping non-whitelisted field", "field", field)
		}
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBoolPtr(v interface{}) *bool {
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

func asStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(vv), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// patientSelectColumns is the column list shared by both SQL backends.
const patientSelectColumns = `patient_id, mpid, name, phone_number, email,
	customer_edd, first_pregnancy, scans_done, having_twins,
	customer_location, relatives_living_with, mother_occupation, father_occupation,
	referral_source, aware_of_packages, downloaded_app, booking_method,
	insurance_status, transport_method, mentioned_competitors, interested_in_facilities,
	doctor_preference, doctor_name, price_inquiry, accompanied_by,
	brings_other_children, doctor_remark_questions, going_to_native, package_interest,
	lead_status, booking_status, follow_up_date, notes, created_date, last_updated`

// rowScanner abstracts sql.Row and sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPatient scans one patient row in patientSelectColumns order.
func scanPatient(row rowScanner) (models.Patient, error) {
	var p models.Patient
	var mpid, phone, email, edd, scansJSON, twins, location, relatives sql.NullString
	var motherOcc, fatherOcc, referral, booking, insurance, transport sql.NullString
	var doctorPref, doctorName, accompanied, children, pkgInterest sql.NullString
	var leadStatus, bookingStatus, followUp, notes sql.NullString
	var firstPregnancy, aware, downloaded, competitors, interested sql.NullBool
	var price, remark, native sql.NullBool
	var createdDate, lastUpdated sql.NullTime

	err := row.Scan(
		&p.PatientID, &mpid, &p.Name, &phone, &email,
		&edd, &firstPregnancy, &scansJSON, &twins,
		&location, &relatives, &motherOcc, &fatherOcc,
		&referral, &aware, &downloaded, &booking,
		&insurance, &transport, &competitors, &interested,
		&doctorPref, &doctorName, &price, &accompanied,
		&children, &remark, &native, &pkgInterest,
		&leadStatus, &bookingStatus, &followUp, &notes, &createdDate, &lastUpdated,
	)
	if err != nil {
		return p, fmt.Errorf("scan patient failed: %w", err)
	}

	p.MPID = mpid.String
	p.PhoneNumber = phone.String
	p.Email = email.String
	p.CustomerEDD = edd.String
	p.HavingTwins = twins.String
	p.CustomerLocation = location.String
	p.RelativesLivingWith = relatives.String
	p.MotherOccupation = motherOcc.String
	p.FatherOccupation = fatherOcc.String
	p.ReferralSource = referral.String
	p.BookingMethod = booking.String
	p.InsuranceStatus = insurance.String
	p.TransportMethod = transport.String
	p.DoctorPreference = doctorPref.String
	p.DoctorName = doctorName.String
	p.AccompaniedBy = accompanied.String
	p.BringsOtherChildren = children.String
	p.PackageInterest = pkgInterest.String
	p.LeadStatus = leadStatus.String
	p.BookingStatus = bookingStatus.String
	p.FollowUpDate = followUp.String
	p.Notes = notes.String
	p.FirstPregnancy = nullBoolPtr(firstPregnancy)
	p.AwareOfPackages = nullBoolPtr(aware)
	p.DownloadedApp = nullBoolPtr(downloaded)
	p.MentionedCompetitors = nullBoolPtr(competitors)
	p.InterestedInFacility = nullBoolPtr(interested)
	p.PriceInquiry = nullBoolPtr(price)
	p.DoctorRemarkQuestions = nullBoolPtr(remark)
	p.GoingToNative = nullBoolPtr(native)
	if createdDate.Valid {
		p.CreatedDate = createdDate.Time
	}
	if lastUpdated.Valid {
		p.LastUpdated = lastUpdated.Time
	}
	if scansJSON.Valid && scansJSON.String != "" {
		if err := json.Unmarshal([]byte(scansJSON.String), &p.ScansDone); err != nil {
			slog.Warn("store: malformed scans_done JSON, leaving empty", "patientID", p.PatientID, "error", err)
		}
	}
	return p, nil
}

func nullBoolPtr(b sql.NullBool) *bool {
	if !b.Valid {
		return nil
	}
	v := b.Bool
	return &v
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
