package model

type StylePreferences struct {
	Tone             string
	Formality        string
	PreferredPhrases []string
	AvoidPhrases     []string
	CustomGuidance   string
}

func (s StylePreferences) Empty() bool {
	return s.Tone == "" && s.Formality == "" && len(s.PreferredPhrases) == 0 &&
		len(s.AvoidPhrases) == 0 && s.CustomGuidance == ""
}
