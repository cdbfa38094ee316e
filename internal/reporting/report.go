// Package reporting renders assessment, simulation and position-check
// results as text, Markdown or CSV. Renderers are pure string builders:
// they never touch the network or the clock.
package reporting

// Format selects an output renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat validates a format name. Empty input defaults to text.
func ParseFormat(name string) (Format, bool) {
	switch Format(name) {
	case "":
		return FormatText, true
	case FormatText, FormatMarkdown, FormatCSV, FormatJSON:
		return Format(name), true
	default:
		return "", false
	}
}

// errorMessage renders a result error without its wrapped chain noise.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// shortAddress abbreviates a 0x address for display.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + ".." + addr[len(addr)-4:]
}
