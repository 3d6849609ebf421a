package certificate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTags(t *testing.T) {
	tags := ExtractTags("Dear {user.name}, {course.title} {user.name} {} {Course.Title}")
	require.Len(t, tags, 4)
	assert.Equal(t, Tag{Raw: "{user.name}", Path: "user.name"}, tags[0])
	assert.Equal(t, Tag{Raw: "{course.title}", Path: "course.title"}, tags[1])
	assert.Equal(t, Tag{Raw: "{user.name}", Path: "user.name"}, tags[2])
	assert.Equal(t, "Course.Title", tags[3].Path, "matching is case-sensitive and keeps case")

	assert.Empty(t, ExtractTags("no placeholders here"))
}

func TestSubstitute(t *testing.T) {
	payload := Payload{
		"user": map[string]any{
			"name":  "Ann",
			"score": 0,
			"empty": "",
			"ratio": 0.5,
			"yes":   true,
			"no":    false,
		},
		"course": map[string]string{"title": "Go 101"},
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"simple", "Hello {user.name}", "Hello Ann"},
		{"zero renders", "score {user.score}", "score 0"},
		{"empty string renders empty", "[{user.empty}]", "[]"},
		{"true renders 1", "[{user.yes}]", "[1]"},
		{"false renders empty", "[{user.no}]", "[]"},
		{"missing field", "[{user.missing}]", "[]"},
		{"missing namespace", "[{org.name}]", "[]"},
		{"no separator", "[{username}]", "[]"},
		{"repeated token", "{user.name} and {user.name}", "Ann and Ann"},
		{"string map namespace", "{course.title}", "Go 101"},
		{"float", "{user.ratio}", "0.5"},
		{"field keeps dots", "[{user.name.first}]", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RenderBody(tt.body, payload))
		})
	}
}

func TestSubstitute_NilPayloadBlanksTokens(t *testing.T) {
	assert.Equal(t, "Hello , welcome", RenderBody("Hello {user.name}, welcome", nil))
}

func TestSubstitute_ValuesAreNotRescanned(t *testing.T) {
	payload := Payload{
		"user": map[string]any{"name": "{user.secret}", "secret": "leaked"},
	}
	assert.Equal(t, "Hi {user.secret}", RenderBody("Hi {user.name}", payload))
}

func TestSubstitute_JSONDecodedPayload(t *testing.T) {
	var payload Payload
	require.NoError(t, json.Unmarshal([]byte(`{"user":{"name":"Ann","score":0,"grade":null}}`), &payload))
	assert.Equal(t, "Ann 0 []", RenderBody("{user.name} {user.score} [{user.grade}]", payload))
}

func TestSubstitute_NoTokenSurvives(t *testing.T) {
	bodies := []string{
		"{a.b}{c.d}{e}",
		"{{user.name}}",
		"pre {user.name} mid {course.x} post {user.score}",
	}
	payload := Payload{"user": map[string]any{"name": "Ann", "score": 0}}
	for _, body := range bodies {
		out := RenderBody(body, payload)
		for _, tag := range ExtractTags(body) {
			assert.NotContains(t, out, tag.Raw, "body %q", body)
		}
	}
}
