package stageexec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"catalogcron/internal/graphstore"
)

type manifestLine struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Mappings []string `json:"mappings"`
}

// readManifest parses the JSON-lines class manifest written by the parser.
func readManifest(path string) ([]graphstore.Class, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class manifest: %w", err)
	}
	defer file.Close()
	return decodeManifest(file)
}

func decodeManifest(r io.Reader) ([]graphstore.Class, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var classes []graphstore.Class
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry manifestLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		if strings.TrimSpace(entry.ID) == "" {
			return nil, fmt.Errorf("manifest line %d: class id is required", lineNo)
		}
		classes = append(classes, graphstore.Class{ID: entry.ID, Label: strings.TrimSpace(entry.Label), Mappings: entry.Mappings})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return classes, nil
}

var labelCaser = cases.Title(language.English)

// generateLabel derives a readable label from the local name of a class IRI:
// "http://x/onto#brainRegion_part" becomes "Brain Region Part".
func generateLabel(id string) string {
	local := strings.TrimRight(id, "#/")
	if idx := strings.LastIndexAny(local, "#/"); idx >= 0 {
		local = local[idx+1:]
	}
	var b strings.Builder
	prev := rune(0)
	for _, r := range local {
		switch {
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(' ')
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	label := strings.Join(strings.Fields(b.String()), " ")
	if label == "" {
		return id
	}
	return labelCaser.String(label)
}
