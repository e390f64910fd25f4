// Package detect classifies exported chat logs by platform and pulls the
// participant names out of them.
package detect

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alterecho/alterecho/pkg/db"
)

// classifyHead bounds how much of the file classification inspects.
const classifyHead = 16384

var (
	// whatsappLine matches the "date, time - " prefix of a WhatsApp export
	// line.
	whatsappLine = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4},\s\d{1,2}:\d{2}.*-\s`)

	// whatsappSender additionally captures the sender before the colon.
	whatsappSender = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{2,4},\s\d{1,2}:\d{2}.*-\s(.*?):`)

	// lineSender matches LINE's "HH:MM<tab>Sender<tab>Message" rows.
	lineSender = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(?:\s*[AP]M)?\t(.+?)\t`)
)

// Classify identifies the conversation platform an exported file came
// from. Unrecognized content classifies as db.PlatformUnknown rather than
// failing.
func Classify(content []byte) string {
	head := content
	if len(head) > classifyHead {
		head = head[:classifyHead]
	}
	text := string(head)
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "[LINE]") {
		return db.PlatformLINE
	}

	// Instagram's HTML export tags sender names with the _a6-h class and
	// timestamps with _a6-o.
	if strings.HasPrefix(trimmed, "<html") || strings.HasPrefix(trimmed, "<!DOCTYPE") {
		if strings.Contains(text, "_a6-h") && strings.Contains(text, "_a6-o") {
			return db.PlatformInstagramHTML
		}
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if strings.Contains(text, `"participants":`) && strings.Contains(text, `"messages":`) {
			return db.PlatformInstagram
		}
	}

	if whatsappLine.MatchString(text) {
		return db.PlatformWhatsApp
	}
	return db.PlatformUnknown
}

// Participants extracts the distinct participant names for a classified
// file, sorted. Unknown types and extraction failures return nil.
func Participants(content []byte, detectedType string) []string {
	seen := make(map[string]struct{})
	switch detectedType {
	case db.PlatformInstagram:
		var export struct {
			Participants []struct {
				Name string `json:"name"`
			} `json:"participants"`
		}
		if err := json.Unmarshal(content, &export); err != nil {
			return nil
		}
		for _, p := range export.Participants {
			add(seen, p.Name)
		}

	case db.PlatformInstagramHTML:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
		if err != nil {
			return nil
		}
		doc.Find("h2._a6-h").Each(func(_ int, sel *goquery.Selection) {
			add(seen, sel.Text())
		})

	case db.PlatformWhatsApp:
		for _, line := range strings.Split(string(content), "\n") {
			if m := whatsappSender.FindStringSubmatch(line); m != nil {
				add(seen, m[1])
			}
		}

	case db.PlatformLINE:
		for _, line := range strings.Split(string(content), "\n") {
			if m := lineSender.FindStringSubmatch(line); m != nil {
				add(seen, m[1])
			}
		}

	default:
		return nil
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func add(seen map[string]struct{}, name string) {
	name = strings.TrimSpace(name)
	if name != "" {
		seen[name] = struct{}{}
	}
}
