package asr

import (
	"strings"

	"github.com/voxstream/voxstream/pkg/config"
)

// baseInstruction is the transcription prompt sent to instruction-driven
// engines. Hotwords are appended as a suffix when present.
const baseInstruction = "Please transcribe this audio into text"

// NormalizeHotwords trims, lowercases and deduplicates the hotword list,
// dropping empties and capping the result at config.MaxHotwords. Order of
// first occurrence is preserved.
func NormalizeHotwords(words []string) []string {
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) == config.MaxHotwords {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// BuildInstruction renders the engine instruction for the given hotwords.
// The words are normalized first; with no usable hotwords the base
// instruction is returned alone.
func BuildInstruction(hotwords []string) string {
	words := NormalizeHotwords(hotwords)
	if len(words) == 0 {
		return baseInstruction
	}

	var sb strings.Builder
	sb.WriteString(baseInstruction)
	sb.WriteString(". Pay special attention to these important terms: ")
	for i, w := range words {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(`"`)
		sb.WriteString(w)
		sb.WriteString(`"`)
	}
	return sb.String()
}
