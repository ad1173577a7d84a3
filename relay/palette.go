package relay

// speakerPalette hands out a stable color per speaker label, in order of
// first appearance, wrapping around when the palette runs out.
var paletteColors = []string{
	"#e63946",
	"#457b9d",
	"#2a9d8f",
	"#e9c46a",
	"#9b5de5",
	"#f4a261",
	"#00b4d8",
	"#ef476f",
}

type speakerPalette struct {
	assigned map[string]string
	order    []string
}

func newSpeakerPalette() *speakerPalette {
	return &speakerPalette{assigned: make(map[string]string)}
}

func (p *speakerPalette) Color(speaker string) string {
	if color, ok := p.assigned[speaker]; ok {
		return color
	}
	color := paletteColors[len(p.order)%len(paletteColors)]
	p.assigned[speaker] = color
	p.order = append(p.order, speaker)
	return color
}

// ConfidenceLevel buckets a raw confidence score for display.
func ConfidenceLevel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "high"
	case confidence >= 0.7:
		return "medium"
	default:
		return "low"
	}
}
