package session

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Export writes the transcript in the interchange text format: a fixed
// header, then one line per point that carries an utterance. Pure sensor
// points produce no line. now stamps the header so exports are reproducible
// in tests.
func Export(w io.Writer, t *Transcript, now time.Time) error {
	header := fmt.Sprintf(
		"# FloraFi Transcript\n# Generated: %s\n# Session: %s\n# Plant: %s\n# Device: %s\n# Creator: %s\n\n",
		now.UTC().Format(time.RFC3339), t.ID, t.PlantName, t.DeviceID, t.CreatorID,
	)
	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("session: write header: %w", err)
	}

	for _, p := range t.Points() {
		line, ok := exportLine(p)
		if !ok {
			continue
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("session: write point: %w", err)
		}
	}
	return nil
}

// ExportString renders the transcript to a string.
func ExportString(t *Transcript, now time.Time) (string, error) {
	var b strings.Builder
	if err := Export(&b, t, now); err != nil {
		return "", err
	}
	return b.String(), nil
}

func exportLine(p Point) (string, bool) {
	stamp := p.At.UTC().Format("15:04:05.000")
	switch {
	case p.UserText != "":
		return fmt.Sprintf("[%s dev=%.2f] you: %s", stamp, p.Deviation, sanitize(p.UserText)), true
	case p.CompanionText != "":
		return fmt.Sprintf("[%s dev=%.2f] plant: %s", stamp, p.Deviation, sanitize(p.CompanionText)), true
	}
	return "", false
}

// sanitize keeps each utterance on one line so line count stays meaningful.
func sanitize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " / ")
}
