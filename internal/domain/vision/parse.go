package vision

import (
	"encoding/json"
	"fmt"
)

// rawAnnotation uses pointers for fields that take a default when absent, so
// an explicit zero survives parsing but a missing key does not.
type rawAnnotation struct {
	AppName                *string          `json:"app_name"`
	WindowTitle            string           `json:"window_title"`
	ActivityCategory       ActivityCategory `json:"activity_category"`
	ActivityType           string           `json:"activity_type"`
	FocusScore             *int             `json:"focus_score"`
	ContentSummary         string           `json:"content_summary"`
	DetectedText           string           `json:"detected_text"`
	DetectedObjects        []string         `json:"detected_objects"`
	UIElements             *UIElements      `json:"ui_elements"`
	WebsiteURL             string           `json:"website_url"`
	Domain                 string           `json:"domain"`
	ProgrammingLanguage    string           `json:"programming_language"`
	FileType               string           `json:"file_type"`
	DistractionIndicators  []string         `json:"distraction_indicators"`
	ProductivityIndicators []string         `json:"productivity_indicators"`
	VisibleBrands          []string         `json:"visible_brands"`
	ColorScheme            string           `json:"color_scheme"`
	ScreenDensity          string           `json:"screen_density"`
	UserAction             string           `json:"user_action"`
	TimeOfDayHint          string           `json:"time_of_day_hint"`
	MultitaskingDetected   bool             `json:"multitasking_detected"`
	AttentionLevel         string           `json:"attention_level"`
	ContentType            string           `json:"content_type"`
	SensitiveInfoDetected  bool             `json:"sensitive_info_detected"`
	Keywords               []string         `json:"keywords"`
	Confidence             *float64         `json:"confidence"`
}

// ParseAnnotation extracts the first top-level JSON object from a model
// reply (the model sometimes wraps it in commentary) and normalizes it into
// a fully populated Annotation. A reply without any JSON object, or with one
// that does not parse, is an error; individual missing fields are not.
func ParseAnnotation(reply string) (*Annotation, error) {
	obj := extractJSONObject(reply)
	if obj == "" {
		return nil, ErrMalformedResponse
	}

	var raw rawAnnotation
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	a := &Annotation{
		AppName:                stringOr(raw.AppName, "Unknown Application"),
		WindowTitle:            raw.WindowTitle,
		ActivityCategory:       normalizeCategory(raw.ActivityCategory),
		ActivityType:           orDefault(raw.ActivityType, "other"),
		FocusScore:             clampScore(intOr(raw.FocusScore, 50)),
		ContentSummary:         orDefault(raw.ContentSummary, "Screenshot analysis"),
		DetectedText:           raw.DetectedText,
		DetectedObjects:        orEmpty(raw.DetectedObjects),
		WebsiteURL:             raw.WebsiteURL,
		Domain:                 raw.Domain,
		ProgrammingLanguage:    raw.ProgrammingLanguage,
		FileType:               raw.FileType,
		DistractionIndicators:  orEmpty(raw.DistractionIndicators),
		ProductivityIndicators: orEmpty(raw.ProductivityIndicators),
		VisibleBrands:          orEmpty(raw.VisibleBrands),
		ColorScheme:            orDefault(raw.ColorScheme, "unknown"),
		ScreenDensity:          orDefault(raw.ScreenDensity, "organized"),
		UserAction:             orDefault(raw.UserAction, "unknown"),
		TimeOfDayHint:          orDefault(raw.TimeOfDayHint, "unknown"),
		MultitaskingDetected:   raw.MultitaskingDetected,
		AttentionLevel:         orDefault(raw.AttentionLevel, "medium"),
		ContentType:            orDefault(raw.ContentType, "mixed"),
		SensitiveInfoDetected:  raw.SensitiveInfoDetected,
		Keywords:               orEmpty(raw.Keywords),
		Confidence:             floatOr(raw.Confidence, 0.5),
	}
	if raw.UIElements != nil {
		a.UIElements = *raw.UIElements
	} else {
		a.UIElements = UIElements{WindowsCount: 1}
	}
	return a, nil
}

// extractJSONObject returns the first balanced top-level {...} in s, string
// and escape aware, or "" when none exists.
func extractJSONObject(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return ""
}

func normalizeCategory(c ActivityCategory) ActivityCategory {
	switch c {
	case CategoryProductive, CategoryNeutral, CategoryDistracting:
		return c
	}
	return CategoryNeutral
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func orEmpty(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
