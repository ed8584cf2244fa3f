package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnotationFullReply(t *testing.T) {
	reply := `Here is the analysis you asked for:
{
  "app_name": "Visual Studio Code",
  "window_title": "main.go - screenwatch",
  "activity_category": "productive",
  "activity_type": "coding",
  "focus_score": 85,
  "content_summary": "Editing a Go source file",
  "detected_text": "func main()",
  "detected_objects": ["code editor", "terminal"],
  "ui_elements": {"tabs_count": 4, "windows_count": 2, "full_screen": true},
  "programming_language": "Go",
  "keywords": ["golang", "editor"],
  "confidence": 0.92
}
Let me know if you need anything else.`

	a, err := ParseAnnotation(reply)
	require.NoError(t, err)

	assert.Equal(t, "Visual Studio Code", a.AppName)
	assert.Equal(t, CategoryProductive, a.ActivityCategory)
	assert.Equal(t, "coding", a.ActivityType)
	assert.Equal(t, 85, a.FocusScore)
	assert.Equal(t, []string{"code editor", "terminal"}, a.DetectedObjects)
	assert.Equal(t, 4, a.UIElements.TabsCount)
	assert.True(t, a.UIElements.FullScreen)
	assert.Equal(t, "Go", a.ProgrammingLanguage)
	assert.Equal(t, 0.92, a.Confidence)
}

func TestParseAnnotationDefaultsMissingFields(t *testing.T) {
	a, err := ParseAnnotation(`{}`)
	require.NoError(t, err)

	assert.Equal(t, "Unknown Application", a.AppName)
	assert.Equal(t, CategoryNeutral, a.ActivityCategory)
	assert.Equal(t, "other", a.ActivityType)
	assert.Equal(t, 50, a.FocusScore)
	assert.Equal(t, "Screenshot analysis", a.ContentSummary)
	assert.Equal(t, "medium", a.AttentionLevel)
	assert.Equal(t, "mixed", a.ContentType)
	assert.Equal(t, 0.5, a.Confidence)
	assert.Equal(t, 1, a.UIElements.WindowsCount)
	assert.NotNil(t, a.DetectedObjects)
	assert.Empty(t, a.DetectedObjects)
	assert.NotNil(t, a.Keywords)
}

func TestParseAnnotationExplicitZeroFocusScoreSurvives(t *testing.T) {
	a, err := ParseAnnotation(`{"focus_score": 0}`)
	require.NoError(t, err)
	assert.Equal(t, 0, a.FocusScore)
}

func TestParseAnnotationClampsFocusScore(t *testing.T) {
	a, err := ParseAnnotation(`{"focus_score": 150}`)
	require.NoError(t, err)
	assert.Equal(t, 100, a.FocusScore)

	a, err = ParseAnnotation(`{"focus_score": -10}`)
	require.NoError(t, err)
	assert.Equal(t, 0, a.FocusScore)
}

func TestParseAnnotationNormalizesUnknownCategory(t *testing.T) {
	a, err := ParseAnnotation(`{"activity_category": "extremely productive"}`)
	require.NoError(t, err)
	assert.Equal(t, CategoryNeutral, a.ActivityCategory)
}

func TestParseAnnotationBracesInsideStrings(t *testing.T) {
	a, err := ParseAnnotation(`noise {"content_summary": "JSON like {\"a\": 1} on screen", "app_name": "Terminal"} noise`)
	require.NoError(t, err)
	assert.Equal(t, "Terminal", a.AppName)
	assert.Equal(t, `JSON like {"a": 1} on screen`, a.ContentSummary)
}

func TestParseAnnotationNoJSONObject(t *testing.T) {
	_, err := ParseAnnotation("I could not analyze this image, sorry.")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseAnnotationInvalidJSON(t *testing.T) {
	_, err := ParseAnnotation(`{"app_name": }`)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
