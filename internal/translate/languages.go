package translate

// Language maps a display name shown in the form to the English name used in the prompt.
type Language struct {
	Display   string `json:"display"`
	Canonical string `json:"canonical"`
}

// DefaultDisplay is the dropdown's initial selection.
const DefaultDisplay = "Inglés"

// FallbackLanguage is used for display names not in the table.
const FallbackLanguage = "English"

var languages = []Language{
	{Display: "Español", Canonical: "Spanish"},
	{Display: "Inglés", Canonical: "English"},
	{Display: "Francés", Canonical: "French"},
	{Display: "Alemán", Canonical: "German"},
	{Display: "Italiano", Canonical: "Italian"},
	{Display: "Portugués", Canonical: "Portuguese"},
	{Display: "Japonés", Canonical: "Japanese"},
	{Display: "Chino (Simplificado)", Canonical: "Chinese (Simplified)"},
	{Display: "Coreano", Canonical: "Korean"},
	{Display: "Ruso", Canonical: "Russian"},
}

var canonicalByDisplay = func() map[string]string {
	m := make(map[string]string, len(languages))
	for _, l := range languages {
		m[l.Display] = l.Canonical
	}
	return m
}()

// Languages returns the supported languages in dropdown order.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// Canonical resolves a display name, falling back to English.
func Canonical(display string) string {
	if c, ok := canonicalByDisplay[display]; ok {
		return c
	}
	return FallbackLanguage
}
