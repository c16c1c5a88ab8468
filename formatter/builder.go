package formatter

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/fatih/color"

	"github.com/gnolang/refine/optimizer"
)

var (
	errorStyle      = color.New(color.FgRed, color.Bold)
	warningStyle    = color.New(color.FgHiYellow, color.Bold)
	ruleStyle       = color.New(color.FgYellow, color.Bold)
	fileStyle       = color.New(color.FgCyan, color.Bold)
	lineStyle       = color.New(color.FgHiBlue, color.Bold)
	removedStyle    = color.New(color.FgRed)
	suggestionStyle = color.New(color.FgGreen, color.Bold)
	noStyle         = color.New(color.FgWhite)
)

const outcomeTemplate = `{{header .Applied -}}
{{location .Filename .Cached .MaxLineNumWidth}}
{{- if .Changed }}
{{hunk .Hunk .Padding .MaxLineNumWidth -}}
{{- end }}
{{note .Padding .Steps .SessionID .Cached}}
`

type OutcomeData struct {
	Filename        string
	SessionID       string
	Applied         []string
	Steps           int
	Cached          bool
	Changed         bool
	Hunk            Hunk
	MaxLineNumWidth int
	Padding         string
}

// GenerateFormattedOutcome renders one optimization outcome: the applied
// transformations, the changed region of the program and the session data.
func GenerateFormattedOutcome(out *optimizer.Outcome) string {
	h := diffLines(out.Original, out.FinalCode)
	if out.Cached {
		// the original text is not kept for cached results
		h = Hunk{}
	}
	width := calculateMaxLineNumWidth(h.lastLine())

	data := OutcomeData{
		Filename:        out.Path,
		SessionID:       out.SessionID,
		Applied:         out.Applied,
		Steps:           out.Steps,
		Cached:          out.Cached,
		Changed:         !h.empty(),
		Hunk:            h,
		MaxLineNumWidth: width,
		Padding:         strings.Repeat(" ", width+1),
	}

	funcMap := template.FuncMap{
		"header":   header,
		"location": location,
		"hunk":     hunkLines,
		"note":     note,
	}
	tmpl := template.Must(template.New("outcome").Funcs(funcMap).Parse(outcomeTemplate))

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting outcome: %v", err)
	}
	return buf.String()
}

// utils functions used in the text templates

func header(applied []string) string {
	if len(applied) == 0 {
		return warningStyle.Sprint("unchanged: ") + noStyle.Sprint("no transformation applied\n")
	}
	return suggestionStyle.Sprint("optimized: ") + ruleStyle.Sprintf("%s\n", strings.Join(applied, ", "))
}

func location(filename string, cached bool, maxLineNumWidth int) string {
	if filename == "" {
		filename = "<input>"
	}
	endString := lineStyle.Sprintf("%s--> ", strings.Repeat(" ", maxLineNumWidth))
	endString += fileStyle.Sprint(filename)
	if cached {
		endString += noStyle.Sprint(" (cached)")
	}
	return endString
}

func hunkLines(h Hunk, padding string, maxLineNumWidth int) string {
	var endString string
	endString = lineStyle.Sprintf("%s|\n", padding)
	for i, line := range h.Removed {
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, h.Start+i)
		endString += lineStyle.Sprintf("%s ", lineNum) + removedStyle.Sprintf("- %s\n", line)
	}
	if len(h.Removed) > 0 && len(h.Added) > 0 {
		endString += lineStyle.Sprintf("%s|\n", padding)
	}
	for i, line := range h.Added {
		lineNum := fmt.Sprintf("%*d", maxLineNumWidth, h.Start+i)
		endString += lineStyle.Sprintf("%s ", lineNum) + suggestionStyle.Sprintf("+ %s\n", line)
	}
	endString += lineStyle.Sprintf("%s|", padding)
	return endString
}

func note(padding string, steps int, sessionID string, cached bool) string {
	endString := lineStyle.Sprintf("%s= ", padding)
	if cached {
		return endString + noStyle.Sprint("result reused from cache")
	}
	return endString + noStyle.Sprintf("%d steps, session %s", steps, sessionID)
}

func calculateMaxLineNumWidth(endLine int) int {
	return len(fmt.Sprintf("%d", endLine))
}
