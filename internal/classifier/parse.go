package classifier

import (
	"encoding/json"
	"regexp"
	"strings"
)

// CleanJSON strips markdown code fences and finds the JSON object/array
// boundaries in a raw model response, adapted from the teacher's
// CleanJSONResponse (importer/internal/llm/llm.go).
func CleanJSON(input string) string {
	res := strings.TrimSpace(input)

	if startIdx := strings.Index(res, "```json"); startIdx != -1 {
		if endIdx := strings.LastIndex(res, "```"); endIdx > startIdx+7 {
			return strings.TrimSpace(res[startIdx+7 : endIdx])
		}
	}

	if startIdx := strings.Index(res, "```"); startIdx != -1 {
		if endIdx := strings.LastIndex(res, "```"); endIdx > startIdx+3 {
			block := strings.TrimSpace(res[startIdx+3 : endIdx])
			if (strings.HasPrefix(block, "[") && strings.HasSuffix(block, "]")) ||
				(strings.HasPrefix(block, "{") && strings.HasSuffix(block, "}")) {
				return block
			}
		}
	}

	firstBracket := strings.Index(res, "[")
	lastBracket := strings.LastIndex(res, "]")
	firstBrace := strings.Index(res, "{")
	lastBrace := strings.LastIndex(res, "}")

	isArr := firstBracket != -1 && lastBracket > firstBracket
	isObj := firstBrace != -1 && lastBrace > firstBrace

	if isArr && (!isObj || firstBracket < firstBrace) && lastBracket > lastBrace {
		return strings.TrimSpace(res[firstBracket : lastBracket+1])
	} else if isObj && (!isArr || firstBrace < firstBracket) && lastBrace > lastBracket {
		return strings.TrimSpace(res[firstBrace : lastBrace+1])
	}

	return res
}

// If a bare JSON list is returned instead of the expected object, take
// its first element (spec §4.4 step 3).
func unwrapFirstElementIfArray(cleaned string) string {
	trimmed := strings.TrimSpace(cleaned)
	if !strings.HasPrefix(trimmed, "[") {
		return cleaned
	}
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &arr); err != nil || len(arr) == 0 {
		return cleaned
	}
	return string(arr[0])
}

var jobSubfamilyRecoveryPattern = regexp.MustCompile(`"job_subfamily"\s*:\s*"([a-zA-Z0-9_]+)"`)

// RecoverJobSubfamily attempts a regex recovery of job_subfamily from a
// response that failed to parse as JSON at all (spec §4.4 step 3, §7
// error taxonomy #6: "a regex recovery pass is attempted (only for
// job_subfamily)").
func RecoverJobSubfamily(raw string) (string, bool) {
	m := jobSubfamilyRecoveryPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// rawClassification is the wire shape returned by the model, parsed
// before validation and before the deterministic corrections in
// internal/taxonomy are applied.
type rawClassification struct {
	Employer struct {
		DepartmentGuess  string `json:"department_guess"`
		IsAgency         bool   `json:"is_agency"`
		AgencyConfidence string `json:"agency_confidence"`
	} `json:"employer"`
	Role struct {
		JobFamily       string `json:"job_family"`
		JobSubfamily    string `json:"job_subfamily" validate:"required"`
		Seniority       string `json:"seniority"`
		Track           string `json:"track"`
		PositionType    string `json:"position_type"`
		ExperienceRange string `json:"experience_range"`
	} `json:"role" validate:"required"`
	Location struct {
		WorkingArrangement string `json:"working_arrangement"`
	} `json:"location"`
	Compensation struct {
		Currency       string `json:"currency"`
		Min            *int64 `json:"min"`
		Max            *int64 `json:"max"`
		EquityEligible bool   `json:"equity_eligible"`
	} `json:"compensation"`
	Skills []struct {
		Name string `json:"name"`
	} `json:"skills"`
	Summary string `json:"summary"`
}

// ParseResponse runs the full defensive-parse pipeline: clean fences,
// unwrap a bare array, unmarshal, and fall back to regex recovery of
// job_subfamily alone when unmarshal fails outright.
func ParseResponse(raw string) (*rawClassification, string, error) {
	cleaned := CleanJSON(raw)
	cleaned = unwrapFirstElementIfArray(cleaned)

	var parsed rawClassification
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		if subfamily, ok := RecoverJobSubfamily(raw); ok {
			parsed.Role.JobSubfamily = subfamily
			return &parsed, cleaned, nil
		}
		return nil, cleaned, err
	}
	return &parsed, cleaned, nil
}
