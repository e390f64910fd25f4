package detect

import (
	"reflect"
	"strings"
	"testing"

	"github.com/alterecho/alterecho/pkg/db"
)

const whatsappSample = `25/10/2025, 12:33 - Ada: are you coming?
25/10/2025, 12:34 - Sam: five minutes
25/10/2025, 12:35 - Ada: ok hurry
25/10/2025, 12:40 - Messages and calls are end-to-end encrypted.`

const lineSample = "[LINE] Chat history with Ada\nSaved on: 2025/10/25\n10:02\tAda\tmorning!\n10:05\tSam\tmorning\n10:06\tAda\tcoffee?\n"

const instagramSample = `{"participants": [{"name": "Ada"}, {"name": "Sam"}], "messages": [{"sender_name": "Ada", "content": "hi"}]}`

const instagramHTMLSample = `<!DOCTYPE html><html><body>
<div class="_3-95"><h2 class="_3-95 _a6-h">Ada</h2><div class="_a6-o">Oct 25, 2025 12:33 pm</div><div>hi</div></div>
<div class="_3-95"><h2 class="_3-95 _a6-h">Sam</h2><div class="_a6-o">Oct 25, 2025 12:34 pm</div><div>hey</div></div>
</body></html>`

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"whatsapp", whatsappSample, db.PlatformWhatsApp},
		{"line", lineSample, db.PlatformLINE},
		{"instagram json", instagramSample, db.PlatformInstagram},
		{"instagram html", instagramHTMLSample, db.PlatformInstagramHTML},
		{"plain prose", "Dear diary, nothing matched today.", db.PlatformUnknown},
		{"empty", "", db.PlatformUnknown},
		{"json without chat keys", `{"foo": 1}`, db.PlatformUnknown},
		{"html without markers", "<!DOCTYPE html><html><body>hi</body></html>", db.PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify([]byte(tt.content)); got != tt.want {
				t.Fatalf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify_LargeFileUsesHead(t *testing.T) {
	// The platform marker sits past the inspection window; the file must
	// still classify, just as unknown.
	pad := strings.Repeat("x", classifyHead)
	content := pad + "\n25/10/2025, 12:33 - Ada: late marker"
	if got := Classify([]byte(content)); got != db.PlatformUnknown {
		t.Fatalf("Classify() = %q, want %q", got, db.PlatformUnknown)
	}
}

func TestParticipants(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		detectedType string
		want         []string
	}{
		{"whatsapp", whatsappSample, db.PlatformWhatsApp, []string{"Ada", "Sam"}},
		{"line", lineSample, db.PlatformLINE, []string{"Ada", "Sam"}},
		{"instagram json", instagramSample, db.PlatformInstagram, []string{"Ada", "Sam"}},
		{"instagram html", instagramHTMLSample, db.PlatformInstagramHTML, []string{"Ada", "Sam"}},
		{"unknown", whatsappSample, db.PlatformUnknown, nil},
		{"broken json", `{"participants": [`, db.PlatformInstagram, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Participants([]byte(tt.content), tt.detectedType)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Participants() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParticipants_WhatsAppSkipsSystemLines(t *testing.T) {
	got := Participants([]byte(whatsappSample), db.PlatformWhatsApp)
	for _, name := range got {
		if strings.Contains(name, "encrypted") {
			t.Fatalf("system line leaked into participants: %v", got)
		}
	}
}
