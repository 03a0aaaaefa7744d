package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Message is a titled error or warning with optional suggestions
type Message struct {
	Warning     bool
	Context     string
	Problem     string
	Suggestions []string
	Help        []string
	NoColor     bool
}

// Format renders the message.
//
// Example output:
//
//	✗ UNKNOWN DOCUMENT TYPE: Persn
//	   Did you mean: Person?
//	   → List types: odm schema
func (m Message) Format() string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	symbol := "✗"
	if m.Warning {
		header = color.New(color.FgYellow, color.Bold)
		symbol = "!"
	}
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}
	if len(m.Suggestions) > 0 {
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	for _, help := range m.Help {
		cyan.Fprintf(&b, "   → %s\n", help)
	}
	return b.String()
}

// UnknownType reports a document type name that is not registered,
// suggesting close registered names
func UnknownType(name string, registered []string, noColor bool) Message {
	return Message{
		Context:     "unknown document type",
		Problem:     name,
		Suggestions: FindSimilar(name, registered, DefaultMaxDistance, DefaultMaxSuggestions),
		Help:        []string{"List types: odm schema"},
		NoColor:     noColor,
	}
}

// WriteSuccess writes a green check line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	fmt.Fprintln(w, green.Sprintf("✓ %s", message))
}
