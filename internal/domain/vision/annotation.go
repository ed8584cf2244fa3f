package vision

// ActivityCategory enum
type ActivityCategory string

const (
	CategoryProductive  ActivityCategory = "productive"
	CategoryNeutral     ActivityCategory = "neutral"
	CategoryDistracting ActivityCategory = "distracting"
)

// UIElements value object
type UIElements struct {
	TabsCount            int  `json:"tabs_count"`
	WindowsCount         int  `json:"windows_count"`
	VisibleNotifications bool `json:"visible_notifications"`
	FullScreen           bool `json:"full_screen"`
	MultipleMonitors     bool `json:"multiple_monitors"`
}

// Annotation is the semantic description of one screen capture. Every field
// is defaulted during parsing so downstream consumers never see a partial
// record.
type Annotation struct {
	AppName                string           `json:"app_name"`
	WindowTitle            string           `json:"window_title"`
	ActivityCategory       ActivityCategory `json:"activity_category"`
	ActivityType           string           `json:"activity_type"`
	FocusScore             int              `json:"focus_score"`
	ContentSummary         string           `json:"content_summary"`
	DetectedText           string           `json:"detected_text"`
	DetectedObjects        []string         `json:"detected_objects"`
	UIElements             UIElements       `json:"ui_elements"`
	WebsiteURL             string           `json:"website_url,omitempty"`
	Domain                 string           `json:"domain,omitempty"`
	ProgrammingLanguage    string           `json:"programming_language,omitempty"`
	FileType               string           `json:"file_type,omitempty"`
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
	Confidence             float64          `json:"confidence"`
}
