package tool

import (
	"fmt"
	"strings"

	contractx "github.com/waritk/frontdesk/agent/contract"
)

// specialtyRules routes symptom phrases to the department that handles them.
// Matching is substring based over the lowered utterance, first rule wins, so
// a complaint like "shortness of breath" lands in Cardiology before
// Pulmonology can claim it. General Physician is last and matches only when
// the caller names a general complaint themselves: nothing ever defaults
// there.
var specialtyRules = []struct {
	name     string
	keywords []string
}{
	{"Radiology", []string{
		"xray", "x-ray", "scan", "mri", "ultrasound", "sonography", "doppler", "imaging",
	}},
	{"Psychiatry", []string{
		"stress", "anxiety", "depression", "mental", "panic", "insomnia", "sleep problem", "mood swings", "anger", "sadness",
	}},
	{"Cardiology", []string{
		"heart", "chest pain", "blood pressure", "palpitation", "heartbeat", "breathlessness", "shortness of breath", "cholesterol",
	}},
	{"Orthopedic", []string{
		"bone", "joint", "back pain", "neck pain", "knee pain", "shoulder pain", "fracture", "injury", "arthritis",
	}},
	{"Urology", []string{
		"urine", "urinary", "uti", "kidney", "bladder", "prostate",
	}},
	{"Neurology", []string{
		"headache", "migraine", "seizure", "stroke", "numbness", "dizziness", "memory loss",
	}},
	{"Dermatology", []string{
		"skin", "rash", "itching", "acne", "eczema", "psoriasis", "fungal", "hair fall",
	}},
	{"ENT", []string{
		"ear pain", "hearing problem", "throat pain", "sore throat", "tonsils", "sinus", "nose block",
	}},
	{"Gastroenterology", []string{
		"stomach pain", "abdominal pain", "acidity", "indigestion", "vomiting", "diarrhea", "constipation", "liver",
	}},
	{"Pulmonology", []string{
		"cough", "breathing problem", "asthma", "lungs", "wheezing",
	}},
	{"Gynecology", []string{
		"pregnancy", "period problem", "menstrual", "pcod", "uterus", "ovary",
	}},
	{"Pediatrics", []string{
		"child", "baby", "infant", "newborn", "vaccination",
	}},
	{"Ophthalmology", []string{
		"eye pain", "eye infection", "blurred vision", "vision problem", "red eye", "watering eyes",
	}},
	{"General Physician", []string{
		"fever", "viral", "cold", "flu", "body pain", "weakness", "fatigue", "infection", "allergy",
		"diabetes", "thyroid", "dengue", "malaria", "typhoid", "general checkup", "routine checkup",
	}},
}

// detectSpecialty returns the department matching the described symptoms, or
// an empty string when nothing matches.
func detectSpecialty(symptoms string) string {
	s := strings.ToLower(strings.TrimSpace(symptoms))
	if s == "" {
		return ""
	}

	for _, rule := range specialtyRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(s, keyword) {
				return rule.name
			}
		}
	}
	return ""
}

func executeSuggestSpecialty(req contractx.ToolRequest) contractx.ToolResult {
	symptoms, err := stringArg(req.Args, "symptoms")
	if err != nil {
		return failure(req, err)
	}

	specialty := detectSpecialty(symptoms)
	if specialty == "" {
		return result(req, "No department matches those symptoms. Ask the caller to describe them differently; do not guess a department.")
	}
	return result(req, fmt.Sprintf("Those symptoms point to %s. Offer a %s appointment and check the slot before promising a time.",
		specialty, specialty))
}
