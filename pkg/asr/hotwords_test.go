package asr

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeHotwords(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{
			name:  "nil input",
			input: nil,
			want:  nil,
		},
		{
			name:  "trims and lowercases",
			input: []string{"  Kubernetes ", "GRPC"},
			want:  []string{"kubernetes", "grpc"},
		},
		{
			name:  "drops empties and duplicates",
			input: []string{"redis", "", "  ", "Redis", "REDIS", "kafka"},
			want:  []string{"redis", "kafka"},
		},
		{
			name: "caps at ten",
			input: []string{
				"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l",
			},
			want: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"},
		},
		{
			name:  "all empty",
			input: []string{"", "   "},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHotwords(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeHotwords(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestBuildInstruction_NoHotwords(t *testing.T) {
	got := BuildInstruction(nil)
	if got != "Please transcribe this audio into text" {
		t.Errorf("BuildInstruction(nil) = %q", got)
	}

	if got2 := BuildInstruction([]string{"", "  "}); got2 != got {
		t.Errorf("BuildInstruction with blank hotwords = %q, want base instruction", got2)
	}
}

func TestBuildInstruction_WithHotwords(t *testing.T) {
	got := BuildInstruction([]string{" Alpha", "beta "})
	want := `Please transcribe this audio into text. Pay special attention to these important terms: "alpha", "beta"`
	if got != want {
		t.Errorf("BuildInstruction = %q, want %q", got, want)
	}

	if strings.Contains(got, "Alpha") {
		t.Error("hotwords should be lowercased in the instruction")
	}
}
