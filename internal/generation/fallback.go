package generation

import (
	"fmt"
	"html"
	"strings"

	"careerkit-credits/pkg/catalog"
)

// Fallback builds a deterministic placeholder document from the input so
// the user gets something usable when the backend fails.
func Fallback(feature catalog.Feature, input map[string]interface{}) interface{} {
	title := stringField(input, "jobTitle", "the role")
	company := stringField(input, "targetCompany", "your target company")
	level := stringField(input, "experienceLevel", "experienced")
	skills := listField(input, "skills")

	switch feature.Name {
	case catalog.ResumeGeneration:
		return map[string]interface{}{
			"summary":    fmt.Sprintf("%s professional targeting %s positions.", capitalize(level), title),
			"experience": []interface{}{},
			"skills":     skills,
			"education":  []interface{}{},
		}
	case catalog.JobTailoring:
		return map[string]interface{}{
			"matchScore":      0,
			"keywords":        skills,
			"suggestions":     []interface{}{"Mirror the key requirements of the job description in your summary.", "Quantify achievements relevant to " + title + "."},
			"tailoredSummary": fmt.Sprintf("Candidate for %s at %s.", title, company),
		}
	case catalog.MockInterview:
		return map[string]interface{}{
			"questions": []interface{}{
				map[string]interface{}{"question": "Tell me about yourself.", "type": "behavioral", "guidance": "Keep it under two minutes and end with why this role."},
				map[string]interface{}{"question": fmt.Sprintf("Why do you want to work at %s?", company), "type": "motivation", "guidance": "Connect the company's mission to your experience."},
				map[string]interface{}{"question": fmt.Sprintf("Describe a challenge you solved as %s.", title), "type": "situational", "guidance": "Use the STAR structure."},
			},
		}
	case catalog.LinkedInOptimization:
		headline := title
		if len(skills) > 0 {
			headline += " | " + strings.Join(toStrings(skills), " | ")
		}
		return map[string]interface{}{
			"headline": headline,
			"about":    fmt.Sprintf("%s %s focused on delivering results.", capitalize(level), title),
			"skills":   skills,
			"tips":     []interface{}{"Add a professional photo.", "Ask colleagues for recommendations."},
		}
	case catalog.SalaryResearch:
		return map[string]interface{}{
			"currency":        "USD",
			"low":             0,
			"median":          0,
			"high":            0,
			"factors":         []interface{}{"Location", "Experience level", "Company size"},
			"negotiationTips": []interface{}{"Research market data before the offer stage."},
		}
	case catalog.CoverLetter:
		return fmt.Sprintf("<p>Dear Hiring Manager,</p><p>I am excited to apply for the %s position at %s.</p><p>Sincerely,<br>%s</p>",
			html.EscapeString(title), html.EscapeString(company), html.EscapeString(stringField(input, "name", "")))
	case catalog.PersonalBrandStrategy:
		return fmt.Sprintf("<h2>Personal Brand Strategy</h2><p>Position yourself as a %s %s.</p><ul><li>Define your niche</li><li>Publish weekly</li><li>Engage with your industry</li></ul>",
			html.EscapeString(level), html.EscapeString(title))
	}
	return map[string]interface{}{}
}

func stringField(input map[string]interface{}, key, def string) string {
	if s, ok := input[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

func listField(input map[string]interface{}, key string) []interface{} {
	switch v := input[key].(type) {
	case []interface{}:
		return v
	case string:
		out := []interface{}{}
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []interface{}{}
}

func toStrings(items []interface{}) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, fmt.Sprint(it))
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
