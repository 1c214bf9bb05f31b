package security

import (
	"regexp"
	"strings"
)

// Detection annotates text that looks like a prompt-injection attempt. It never
// blocks by itself.
type Detection struct {
	Flagged bool
	Reason  string
}

type injectionPattern struct {
	name string
	re   *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{"ignore_previous", regexp.MustCompile(`(?i)\b(ignore|disregard|override|skip)\b.{0,20}\b(all\s+)?(the\s+)?(previous|prior|above|earlier|preceding|system)\b.{0,20}\b(instructions?|prompts?|rules|directions|messages)\b`)},
	{"forget_everything", regexp.MustCompile(`(?i)\bforget\s+(everything|all\s+(of\s+)?(your|the|previous|prior)\s+(instructions|rules|training))`)},
	{"role_switch", regexp.MustCompile(`(?i)\b(you\s+are\s+now|from\s+now\s+on\s+you\s+are|pretend\s+(to\s+be|you\s+are)|act\s+as\s+(a|an|the)\b|roleplay\s+as)`)},
	{"role_prefix", regexp.MustCompile(`(?im)^\s*(system|assistant|developer)\s*:`)},
	{"template_marker", regexp.MustCompile(`(?i)(<\|im_start\|>|<\|im_end\|>|<\|system\|>|\[/?INST\]|<<\s*/?SYS\s*>>|###\s*(instruction|system)|<\s*/?\s*system\s*>)`)},
	{"prompt_exfiltration", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output|leak|tell\s+me)\b.{0,30}\b(your|the)\b.{0,15}\b(system\s+)?(prompt|instructions|guidelines)\b`)},
	{"jailbreak", regexp.MustCompile(`(?i)\b(jailbreak|developer\s+mode|dan\s+mode|do\s+anything\s+now)\b`)},
}

// Detect scans sanitized text against the fixed injection pattern set. Reason
// names every matching pattern, comma separated.
func Detect(s string) Detection {
	if s == "" {
		return Detection{}
	}
	var hits []string
	for _, p := range injectionPatterns {
		if p.re.MatchString(s) {
			hits = append(hits, p.name)
		}
	}
	if len(hits) == 0 {
		return Detection{}
	}
	return Detection{Flagged: true, Reason: strings.Join(hits, ",")}
}

// Merge folds several detections into one, keeping every distinct reason.
func Merge(ds ...Detection) Detection {
	var out Detection
	seen := map[string]struct{}{}
	var reasons []string
	for _, d := range ds {
		if !d.Flagged {
			continue
		}
		out.Flagged = true
		for _, r := range strings.Split(d.Reason, ",") {
			if _, ok := seen[r]; ok || r == "" {
				continue
			}
			seen[r] = struct{}{}
			reasons = append(reasons, r)
		}
	}
	out.Reason = strings.Join(reasons, ",")
	return out
}
