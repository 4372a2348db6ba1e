package translate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactName returns the artifact file name for a prompt fingerprint.
func ArtifactName(fingerprint string) string {
	return "translation_" + fingerprint + ".txt"
}

type artifact struct {
	Original    string
	Translation string
	Display     string
	LatencyMs   float64
	LenResponse int
}

func (a artifact) render() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "=== TEXTO ORIGINAL ===\n%s\n\n", a.Original)
	fmt.Fprintf(b, "=== TRADUCCION A %s ===\n%s\n\n", strings.ToUpper(a.Display), a.Translation)
	fmt.Fprintln(b, "=== METRICAS ===")
	fmt.Fprintf(b, "Latencia: %.2f ms\n", a.LatencyMs)
	fmt.Fprintf(b, "Longitud respuesta: %d caracteres\n", a.LenResponse)
	return b.String()
}

// writeArtifact writes the artifact under dir, replacing any file with the same fingerprint.
func writeArtifact(dir, fingerprint string, a artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(dir, ArtifactName(fingerprint))
	if err := os.WriteFile(path, []byte(a.render()), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}
