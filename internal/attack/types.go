package attack

import (
	"fmt"
	"strings"
)

// Category is the security-risk class of an attack, following the
// OWASP LLM Top 10 tags plus a few extra classes.
type Category string

const (
	CategoryPromptInjection     Category = "LLM-01"
	CategoryInsecureOutput      Category = "LLM-02"
	CategoryTrainingPoisoning   Category = "LLM-03"
	CategoryModelDOS            Category = "LLM-04"
	CategorySupplyChain         Category = "LLM-05"
	CategorySensitiveDisclosure Category = "LLM-06"
	CategoryInsecurePlugin      Category = "LLM-07"
	CategoryExcessiveAgency     Category = "LLM-08"
	CategoryOverreliance        Category = "LLM-09"
	CategoryModelTheft          Category = "LLM-10"
	CategoryJailbreak           Category = "JAILBREAK"
	CategoryPIILeakage          Category = "PII-LEAKAGE"
	CategoryHallucination       Category = "HALLUCINATION"
	CategoryBiasFairness        Category = "BIAS-FAIRNESS"
	CategoryAdversarialInput    Category = "ADVERSARIAL"
)

var categoryAliases = map[string]Category{
	"prompt_injection":          CategoryPromptInjection,
	"injection":                 CategoryPromptInjection,
	"insecure_output_handling":  CategoryInsecureOutput,
	"training_data_poisoning":   CategoryTrainingPoisoning,
	"model_dos":                 CategoryModelDOS,
	"supply_chain":              CategorySupplyChain,
	"sensitive_info_disclosure": CategorySensitiveDisclosure,
	"insecure_plugin_design":    CategoryInsecurePlugin,
	"excessive_agency":          CategoryExcessiveAgency,
	"overreliance":              CategoryOverreliance,
	"model_theft":               CategoryModelTheft,
	"jailbreak":                 CategoryJailbreak,
	"pii_leakage":               CategoryPIILeakage,
	"hallucination":             CategoryHallucination,
	"bias_fairness":             CategoryBiasFairness,
	"adversarial":               CategoryAdversarialInput,
	"adversarial_input":         CategoryAdversarialInput,
}

// ParseCategory accepts either the canonical tag ("LLM-01",
// "JAILBREAK") or a friendly alias ("prompt_injection").
func ParseCategory(s string) (Category, error) {
	trimmed := strings.TrimSpace(s)
	if cat, ok := categoryAliases[strings.ToLower(trimmed)]; ok {
		return cat, nil
	}
	upper := strings.ToUpper(trimmed)
	for _, cat := range categoryAliases {
		if string(cat) == upper {
			return cat, nil
		}
	}
	return "", fmt.Errorf("unknown attack category %q", s)
}

// Complexity is the ordered attack complexity tier.
type Complexity int

const (
	ComplexityLow Complexity = iota
	ComplexityMedium
	ComplexityHigh
)

func (c Complexity) String() string {
	switch c {
	case ComplexityLow:
		return "low"
	case ComplexityMedium:
		return "medium"
	case ComplexityHigh:
		return "high"
	default:
		return "unknown"
	}
}

func ParseComplexity(s string) (Complexity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ComplexityLow, nil
	case "medium", "":
		return ComplexityMedium, nil
	case "high":
		return ComplexityHigh, nil
	default:
		return ComplexityMedium, fmt.Errorf("unknown complexity %q", s)
	}
}

// Definition is one attack from the catalog. Immutable after load.
type Definition struct {
	ID          string
	Name        string
	Description string
	Category    Category
	Complexity  Complexity

	PromptTemplate string
	SystemPrompt   string

	// TurnTemplates make the attack multi-turn: each entry is one
	// user turn, sent in order with the conversation so far as
	// history. Empty for single-turn attacks.
	TurnTemplates []string

	// Parameters maps placeholder name to candidate values; execution
	// expands the Cartesian product into concrete prompts.
	Parameters map[string][]string

	// SuccessIndicators are literal phrases whose presence in the
	// response means the model refused (the test succeeded).
	// FailureIndicators mean the model complied.
	SuccessIndicators []string
	FailureIndicators []string

	ComplianceTags []string
}
