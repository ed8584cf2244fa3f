package prompt

// GetAnalysisPrompt provides strict directions and schema for JSON output.
func GetAnalysisPrompt() string {
	return `Analyze this screenshot in detail and extract comprehensive information in JSON format:

{
  "app_name": "Full name of the primary application (e.g., 'Google Chrome', 'Visual Studio Code', 'Microsoft Excel')",
  "window_title": "Complete window title or main content heading",
  "activity_category": "productive" | "neutral" | "distracting",
  "activity_type": "coding" | "browsing" | "video" | "gaming" | "document" | "social" | "communication" | "design" | "reading" | "meeting" | "other",
  "focus_score": 0-100,
  "content_summary": "Detailed description of what the user is doing (200-300 chars)",
  "detected_text": "Important visible text, headings, and content (up to 800 chars)",
  "detected_objects": ["UI elements like buttons, menus, tabs, toolbars, etc."],
  "ui_elements": {
    "tabs_count": 0,
    "windows_count": 1,
    "visible_notifications": false,
    "full_screen": false,
    "multiple_monitors": false
  },
  "website_url": "URL if browser (null otherwise)",
  "domain": "domain.com if applicable (null otherwise)",
  "programming_language": "Language if coding (null otherwise)",
  "file_type": "File extension/type being worked on (null if not applicable)",
  "distraction_indicators": ["social media", "entertainment", "games", "shopping", etc or empty array],
  "productivity_indicators": ["code", "documentation", "work apps", "research", etc or empty array],
  "visible_brands": ["Recognizable brand names or logos"],
  "color_scheme": "dark" | "light" | "mixed",
  "screen_density": "cluttered" | "organized" | "minimal",
  "user_action": "What action is the user likely performing (e.g., 'writing code', 'watching video', 'reading article')",
  "time_of_day_hint": "morning" | "afternoon" | "evening" | "night" | "unknown",
  "multitasking_detected": true/false,
  "attention_level": "high" | "medium" | "low",
  "content_type": "text" | "video" | "image" | "mixed" | "code" | "data",
  "sensitive_info_detected": false,
  "keywords": ["5-10 relevant keywords from visible content"],
  "confidence": 0.0-1.0
}

Analysis Guidelines:
- Be extremely detailed and specific
- Extract ALL visible text that seems important
- Identify specific apps, not generic terms ("Slack" not "chat app")
- For coding: identify language, framework, and what they're building
- For browsing: get website name, domain, and content type
- Look for productivity vs distraction signals
- Estimate focus level from screen organization and content density
- ONLY respond with valid JSON, no markdown, no extra text`
}
