package generation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"careerkit-credits/pkg/catalog"
)

const systemJSON = "You are an expert career coach and professional writer. " +
	"Respond with a single valid JSON object and nothing else."

const systemHTML = "You are an expert career coach and professional writer. " +
	"Respond with clean semantic HTML using only p, h2, h3, ul, li and strong tags. Do not wrap it in a full page."

// shapes lists the JSON keys each json feature must return.
var shapes = map[string]string{
	catalog.ResumeGeneration:     `{"summary": string, "experience": [{"title": string, "company": string, "highlights": [string]}], "skills": [string], "education": [string]}`,
	catalog.JobTailoring:         `{"matchScore": number, "keywords": [string], "suggestions": [string], "tailoredSummary": string}`,
	catalog.MockInterview:        `{"questions": [{"question": string, "type": string, "guidance": string}]}`,
	catalog.LinkedInOptimization: `{"headline": string, "about": string, "skills": [string], "tips": [string]}`,
	catalog.SalaryResearch:       `{"currency": string, "low": number, "median": number, "high": number, "factors": [string], "negotiationTips": [string]}`,
}

var tasks = map[string]string{
	catalog.ResumeGeneration:      "Write a professional resume tailored to the role.",
	catalog.JobTailoring:          "Compare the resume with the job description and explain how to tailor it.",
	catalog.MockInterview:         "Prepare eight interview questions with guidance on strong answers.",
	catalog.LinkedInOptimization:  "Rewrite the LinkedIn profile to attract recruiters for the role.",
	catalog.SalaryResearch:        "Estimate the salary range for the role and explain the main factors.",
	catalog.CoverLetter:           "Write a one-page cover letter for the role.",
	catalog.PersonalBrandStrategy: "Write a personal brand strategy with positioning, content pillars and a 90-day plan.",
}

var fieldLabels = map[string]string{
	"jobTitle":        "Job title",
	"experienceLevel": "Experience level",
	"targetCompany":   "Target company",
	"industry":        "Industry",
	"location":        "Location",
	"name":            "Candidate name",
	"skills":          "Skills",
	"jobDescription":  "Job description",
	"resume":          "Current resume",
	"profile":         "Current profile",
}

// BuildPrompt returns the system and user messages for a feature.
func BuildPrompt(feature catalog.Feature, input map[string]interface{}) (string, string) {
	var b strings.Builder
	b.WriteString(tasks[feature.Name])
	b.WriteString("\n")

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := render(input[k])
		if v == "" {
			continue
		}
		label, ok := fieldLabels[k]
		if !ok {
			label = k
		}
		fmt.Fprintf(&b, "\n%s: %s", label, v)
	}

	if feature.Format == catalog.FormatHTML {
		return systemHTML, b.String()
	}
	fmt.Fprintf(&b, "\n\nReturn JSON with this shape: %s", shapes[feature.Name])
	return systemJSON, b.String()
}

func render(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := render(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
