package output

import (
	"io"

	"github.com/fatih/color"
)

var (
	// Status colors
	UpToDate        = color.New(color.FgGreen)
	UpdateAvailable = color.New(color.FgYellow, color.Bold)
	Failed          = color.New(color.FgRed)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Package = color.New(color.FgBlue, color.Bold)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// StatusColor returns the color for a check status
// ("up_to_date", "update_available" or "error").
func StatusColor(status string) *color.Color {
	switch status {
	case "up_to_date":
		return UpToDate
	case "update_available":
		return UpdateAvailable
	case "error":
		return Failed
	default:
		return color.New(color.Reset)
	}
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// Fprintf prints with color to w
func Fprintf(w io.Writer, c *color.Color, format string, args ...interface{}) {
	c.Fprintf(w, format, args...)
}
