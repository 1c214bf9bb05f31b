package security

// Defended is one externally sourced field after the input stages.
type Defended struct {
	Text        string // sanitized
	Spotlighted string // sanitized and wrapped, "" for empty input
	Detection   Detection
}

// Pipeline applies sanitize, detect and spotlight to inbound text.
type Pipeline struct {
	MaxLen int
}

func NewPipeline(maxLen int) *Pipeline {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	return &Pipeline{MaxLen: maxLen}
}

func (p *Pipeline) Defend(s string) Defended {
	clean := Sanitize(s, p.MaxLen)
	if clean == "" {
		return Defended{}
	}
	return Defended{
		Text:        clean,
		Spotlighted: Spotlight(clean),
		Detection:   Detect(clean),
	}
}
