// Package catalog holds the static plan and feature tables shared by the
// credit service and its clients.
package catalog

import "sort"

// Plan identifiers.
const (
	PlanFree     = "free"
	PlanBasic    = "basic"
	PlanStandard = "standard"
	PlanPro      = "pro"
)

// Feature names.
const (
	ResumeGeneration      = "resume_generation"
	JobTailoring          = "job_tailoring"
	MockInterview         = "mock_interview"
	LinkedInOptimization  = "linkedin_optimization"
	SalaryResearch        = "salary_research"
	CoverLetter           = "cover_letter"
	PersonalBrandStrategy = "personal_brand_strategy"
)

// Format is the document shape a feature's generator produces.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Feature describes one credit-charging action.
type Feature struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Cost        int    `json:"cost"`
	Format      Format `json:"format"`
}

// Plan is a subscription tier with a monthly credit allotment.
type Plan struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	MonthlyCredits int      `json:"monthlyCredits"`
	PriceCents     int      `json:"priceCents"`
	Features       []string `json:"features"`
}

// Allows reports whether the plan includes feature.
func (p Plan) Allows(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan is billed.
func (p Plan) IsPaid() bool {
	return p.PriceCents > 0
}

var features = map[string]Feature{
	ResumeGeneration:      {Name: ResumeGeneration, DisplayName: "Resume Generation", Cost: 5, Format: FormatJSON},
	JobTailoring:          {Name: JobTailoring, DisplayName: "Job Tailoring", Cost: 3, Format: FormatJSON},
	MockInterview:         {Name: MockInterview, DisplayName: "Mock Interview", Cost: 6, Format: FormatJSON},
	LinkedInOptimization:  {Name: LinkedInOptimization, DisplayName: "LinkedIn Optimization", Cost: 4, Format: FormatJSON},
	SalaryResearch:        {Name: SalaryResearch, DisplayName: "Salary Research", Cost: 2, Format: FormatJSON},
	CoverLetter:           {Name: CoverLetter, DisplayName: "Cover Letter", Cost: 3, Format: FormatHTML},
	PersonalBrandStrategy: {Name: PersonalBrandStrategy, DisplayName: "Personal Brand Strategy", Cost: 8, Format: FormatHTML},
}

var (
	freeFeatures     = []string{ResumeGeneration, CoverLetter}
	basicFeatures    = append(append([]string{}, freeFeatures...), JobTailoring, LinkedInOptimization, SalaryResearch)
	standardFeatures = append(append([]string{}, basicFeatures...), MockInterview)
	proFeatures      = append(append([]string{}, standardFeatures...), PersonalBrandStrategy)
)

// FreePlan is the implicit tier of every user without a paid subscription.
var FreePlan = Plan{ID: PlanFree, Name: "Free", MonthlyCredits: 3, PriceCents: 0, Features: freeFeatures}

var plans = []Plan{
	FreePlan,
	{ID: PlanBasic, Name: "Basic", MonthlyCredits: 20, PriceCents: 999, Features: basicFeatures},
	{ID: PlanStandard, Name: "Standard", MonthlyCredits: 50, PriceCents: 1999, Features: standardFeatures},
	{ID: PlanPro, Name: "Pro", MonthlyCredits: 150, PriceCents: 3999, Features: proFeatures},
}

// PlanByID looks up a plan by its identifier.
func PlanByID(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// AllPlans returns every plan ordered by price.
func AllPlans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

// LookupFeature returns the descriptor for a feature name.
func LookupFeature(name string) (Feature, bool) {
	f, ok := features[name]
	return f, ok
}

// AllFeatures returns every feature sorted by name.
func AllFeatures() []Feature {
	out := make([]Feature, 0, len(features))
	for _, f := range features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureNames returns the sorted list of known feature names.
func FeatureNames() []string {
	all := AllFeatures()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
	}
	return names
}
