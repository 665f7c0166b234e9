package present

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	gradientStart = "#F967DC"
	gradientEnd   = "#6B50FF"
)

// MakeGradientRamp returns length colors blended from pink to violet.
func MakeGradientRamp(length int) []lipgloss.Color {
	ramp := make([]lipgloss.Color, length)
	start, _ := colorful.Hex(gradientStart)
	end, _ := colorful.Hex(gradientEnd)
	for i := range length {
		ramp[i] = lipgloss.Color(start.BlendLuv(end, float64(i)/float64(length)).Hex())
	}
	return ramp
}

// MakeGradientText renders str one rune at a time along the gradient.
// Strings shorter than three runes are returned unstyled.
func MakeGradientText(base lipgloss.Style, str string) string {
	runes := []rune(str)
	if len(runes) < 3 {
		return str
	}
	var b strings.Builder
	for i, c := range MakeGradientRamp(len(runes)) {
		b.WriteString(base.Foreground(c).Render(string(runes[i])))
	}
	return b.String()
}
