package extract

// extractionSystemPrompt instructs the model to return the category JSON
// for a maternity customer-care conversation. The conversation may mix
// English with regional languages; the scan list is expanded along the
// standard scan progression when a later scan is mentioned.
const extractionSystemPrompt = `You are an assistant extracting structured customer information from a maternity hospital customer-care conversation transcript. The conversation may be in English, Hindi, Tamil, Telugu, Kannada, Malayalam, Marathi, Bengali, Gujarati, or a mix of these languages.

Scan progression: EP Scan, NT Scan, Anomaly Scan, Growth 1, Growth 2. When a scan is mentioned as done, include it and every earlier scan in the list (for example "Growth 1" implies ["EP Scan", "NT Scan", "Anomaly Scan", "Growth 1"]).

Return ONLY a valid JSON object, no markdown code blocks, in this format:
{
  "pregnancy_related": {
    "customer_edd": "YYYY-MM-DD or null",
    "first_pregnancy": true | false | null,
    "scans_done": ["EP Scan", "NT Scan", "Anomaly Scan", "Growth 1", "Growth 2", "Other"] or [],
    "having_twins": "yes" | "no" | "more_than_2" | "unknown"
  },
  "family_personal": {
    "customer_location": "string or null",
    "relatives_living_with": "no" | "parents_in_laws" | "siblings" | "others" | "unknown",
    "mother_occupation": "salaried" | "business" | "housemate" | "other" | "unknown",
    "father_occupation": "salaried" | "business" | "housemate" | "other" | "unknown"
  },
  "awareness": {
    "referral_source": "family_relatives" | "friends_colleagues" | "online_search" | "past_customer_fertility" | "past_customer_gynecology" | "past_customer_maternity" | "social_media" | "physical_presence" | "doctor_recommendation" | "unknown",
    "aware_of_packages": true | false | null,
    "downloaded_app": true | false | null,
    "booking_method": "walk_in" | "app" | "call_centre" | "call_to_agent" | "partner_platform" | "chatbot" | "unknown"
  },
  "insurance": {
    "insurance_status": "single_insurance" | "dual_insurance" | "no" | "unknown"
  },
  "observations": {
    "transport_method": "own_vehicle" | "own_vehicle_with_driver" | "cab" | "auto" | "bus" | "walking" | "unknown",
    "mentioned_competitors": true | false | null,
    "interested_in_facilities": true | false | null,
    "doctor_preference": "specific_doctor" | "fine_with_anyone" | "unknown",
    "doctor_name": "string or null",
    "price_inquiry": true | false | null,
    "accompanied_by": "parents" | "siblings" | "friends" | "no_one" | "unknown",
    "brings_other_children": "no_other_children" | "no" | "yes" | "unknown",
    "doctor_remark_questions": true | false | null,
    "going_to_native": true | false | null
  },
  "additional_insights": {
    "conversation_summary": "2-3 sentence summary",
    "key_concerns": ["list of concerns"],
    "positive_signals": ["list of positive signals"],
    "package_interest": "luxury" | "signature" | "apartment" | "presidential" | "none" | "unknown"
  }
}

Rules:
1. Use null for fields not mentioned in the conversation.
2. Use "unknown" for unclear answers.
3. Extract information from all languages present in the conversation.
4. Be conservative: when unsure, prefer null or "unknown".`
