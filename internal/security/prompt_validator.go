package security

import (
	"fmt"
	"regexp"
	"strings"
)

const MaxQuestionLength = 2000

// injectionPatterns catches shell, file-system and instruction-override attempts
// smuggled into a question before it reaches the model.
var injectionPatterns = []*regexp.Regexp{
	// Command execution
	regexp.MustCompile(`(?i)\brm\s+-`),
	regexp.MustCompile(`(?i)\brm\s+/`),
	regexp.MustCompile(`(?i)\bcurl\s+https?://`),
	regexp.MustCompile(`(?i)\bwget\s+`),
	regexp.MustCompile(`(?i)\bbash\s+-`),
	regexp.MustCompile(`(?i)\bsudo\s+`),

	// File system
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`/etc/passwd`),
	regexp.MustCompile(`/etc/shadow`),
	regexp.MustCompile(`id_rsa`),
	regexp.MustCompile(`\.ssh/`),

	// Code execution
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)__import__\s*\(`),
	regexp.MustCompile(`(?i)os\.system`),

	// Instruction override
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(the\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(the\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(the\s+)?previous\s+instructions`),
	regexp.MustCompile(`(?i)new\s+system\s+prompt`),
	regexp.MustCompile(`(?i)忽略(之前|以上|上面)的?(所有)?(指令|提示)`),
}

// PromptValidator screens incoming questions
type PromptValidator struct {
	maxLength int
}

func NewPromptValidator(maxLength int) *PromptValidator {
	if maxLength <= 0 {
		maxLength = MaxQuestionLength
	}
	return &PromptValidator{maxLength: maxLength}
}

// ValidationResult contains validation outcome
type ValidationResult struct {
	Valid   bool
	Message string
}

// Validate checks a question for length and dangerous patterns
func (v *PromptValidator) Validate(question string) ValidationResult {
	if strings.TrimSpace(question) == "" {
		return ValidationResult{Valid: false, Message: "question cannot be empty"}
	}

	if n := len([]rune(question)); n > v.maxLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("question too long: %d chars (max %d)", n, v.maxLength),
		}
	}

	for _, pattern := range injectionPatterns {
		if pattern.MatchString(question) {
			return ValidationResult{
				Valid:   false,
				Message: fmt.Sprintf("dangerous pattern detected: %s", pattern.String()),
			}
		}
	}

	return ValidationResult{Valid: true, Message: "ok"}
}
