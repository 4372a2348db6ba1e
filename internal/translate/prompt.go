package translate

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// SystemPrompt is the persona sent with every request.
const SystemPrompt = "You are a professional translator."

const promptTemplate = "Translate the following text to %s. Return only the translation, no explanations:\n\n%s"

// BuildPrompt builds the user instruction for the completion service.
func BuildPrompt(canonicalLanguage, text string) string {
	return fmt.Sprintf(promptTemplate, canonicalLanguage, text)
}

// Fingerprint returns the first 8 hex characters of the prompt's MD5 digest.
// It names artifact files and correlates runs, so it must stay stable across releases.
func Fingerprint(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return hex.EncodeToString(sum[:])[:8]
}
