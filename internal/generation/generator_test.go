package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "careerkit-credits/internal/common/errors"
	"careerkit-credits/internal/common/logger"
	"careerkit-credits/pkg/catalog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []interface{}{
				map[string]interface{}{"message": map[string]interface{}{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func newGenerator(t *testing.T, url string) *Generator {
	return New(Config{
		BaseURL:    url,
		APIKey:     "sk-test",
		Model:      "gpt-test",
		Timeout:    time.Second,
		MaxRetries: 0,
		MaxTokens:  500,
	}, logger.NewTestLogger(t))
}

func TestGenerate_JSONFeature(t *testing.T) {
	server := completionServer(t, http.StatusOK, "```json\n{\"summary\":\"Seasoned engineer\",\"skills\":[\"Go\"]}\n```")
	g := newGenerator(t, server.URL)

	res, err := g.Generate(context.Background(), Request{
		Feature: catalog.ResumeGeneration,
		Input:   map[string]interface{}{"jobTitle": "Backend Engineer"},
	})

	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, catalog.FormatJSON, res.Format)
	doc := res.Content.(map[string]interface{})
	assert.Equal(t, "Seasoned engineer", doc["summary"])
}

func TestGenerate_HTMLFeature(t *testing.T) {
	server := completionServer(t, http.StatusOK, "<p>Dear Hiring Manager,</p>")
	g := newGenerator(t, server.URL)

	res, err := g.Generate(context.Background(), Request{Feature: catalog.CoverLetter})

	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, "<p>Dear Hiring Manager,</p>", res.Content)
}

func TestGenerate_FallbackPaths(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		content    string
		wantReason string
	}{
		{"malformed json", http.StatusOK, "Sure! Here is your resume.", "MALFORMED_OUTPUT"},
		{"empty completion", http.StatusOK, "   ", "MALFORMED_OUTPUT"},
		{"backend error", http.StatusInternalServerError, "", "GENERATION_FAILED_500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGenerator(t, completionServer(t, tt.status, tt.content).URL)

			res, err := g.Generate(context.Background(), Request{
				Feature: catalog.ResumeGeneration,
				Input:   map[string]interface{}{"jobTitle": "Data Analyst", "skills": "SQL, Python"},
			})

			require.NoError(t, err)
			assert.True(t, res.Fallback)
			assert.Equal(t, tt.wantReason, res.Reason)
			doc := res.Content.(map[string]interface{})
			assert.Contains(t, doc["summary"], "Data Analyst")
			assert.Equal(t, []interface{}{"SQL", "Python"}, doc["skills"])
		})
	}
}

func TestGenerate_TimeoutFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()
	g := newGenerator(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := g.Generate(ctx, Request{Feature: catalog.CoverLetter, Input: map[string]interface{}{"targetCompany": "Acme"}})

	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, string(apperrors.ErrCodeGenerationTimeout), res.Reason)
	assert.Contains(t, res.Content, "Acme")
}

func TestGenerate_NoAPIKeyFallsBack(t *testing.T) {
	g := New(Config{BaseURL: "http://127.0.0.1:1"}, logger.NewTestLogger(t))

	res, err := g.Generate(context.Background(), Request{Feature: catalog.MockInterview})

	require.NoError(t, err)
	assert.True(t, res.Fallback)
}

func TestGenerate_UnknownFeature(t *testing.T) {
	g := newGenerator(t, "http://unused")
	_, err := g.Generate(context.Background(), Request{Feature: "horoscope"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnknownFeature))
}

func TestParse(t *testing.T) {
	doc, err := Parse(catalog.FormatJSON, "```\n{\"a\":1}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, doc)

	_, err = Parse(catalog.FormatJSON, "[1,2]")
	assert.ErrorIs(t, err, ErrMalformedOutput)

	_, err = Parse(catalog.FormatHTML, "plain text")
	assert.ErrorIs(t, err, ErrMalformedOutput)

	html, err := Parse(catalog.FormatHTML, "```html\n<h2>Hi</h2>\n```")
	require.NoError(t, err)
	assert.Equal(t, "<h2>Hi</h2>", html)
}

func TestBuildPrompt(t *testing.T) {
	f, _ := catalog.LookupFeature(catalog.SalaryResearch)
	system, user := BuildPrompt(f, map[string]interface{}{
		"jobTitle": "Product Manager",
		"location": "Berlin",
		"resume":   map[string]interface{}{"years": 4},
		"empty":    "",
	})

	assert.Contains(t, system, "JSON")
	assert.Contains(t, user, "Job title: Product Manager")
	assert.Contains(t, user, "Location: Berlin")
	assert.Contains(t, user, `Current resume: {"years":4}`)
	assert.NotContains(t, user, "empty")
	assert.Contains(t, user, `"median": number`)

	cover, _ := catalog.LookupFeature(catalog.CoverLetter)
	system, _ = BuildPrompt(cover, nil)
	assert.Contains(t, system, "HTML")
}

func TestFallback_EveryFeature(t *testing.T) {
	for _, f := range catalog.AllFeatures() {
		doc := Fallback(f, map[string]interface{}{"jobTitle": "Designer"})
		switch f.Format {
		case catalog.FormatHTML:
			assert.IsType(t, "", doc, f.Name)
		default:
			assert.IsType(t, map[string]interface{}{}, doc, f.Name)
		}
	}
}

func TestBackendError(t *testing.T) {
	timeout := backendError(fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.Equal(t, apperrors.ErrCodeGenerationTimeout, timeout.Code)

	failed := backendError(errors.New("boom"))
	assert.Equal(t, apperrors.ErrCodeGenerationFailed, failed.Code)
	assert.True(t, apperrors.IsRetryableErrorCode(failed.Code))
}
