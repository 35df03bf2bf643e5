package util

import "testing"

func TestStripThinkTags(t *testing.T) {
	in := "<think>plan the section</think>\n\nRevenue grew 12% year over year."
	if got := StripThinkTags(in); got != "Revenue grew 12% year over year." {
		t.Errorf("StripThinkTags() = %q", got)
	}
	if !ContainsThinkTags(in) {
		t.Error("ContainsThinkTags() = false, want true")
	}
	if ContainsThinkTags("no tags here") {
		t.Error("ContainsThinkTags() = true, want false")
	}
}

func TestCleanMetaFromLLMResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no meta",
			in:   "The market is fragmented across three regions.",
			want: "The market is fragmented across three regions.",
		},
		{
			name: "leading preamble",
			in:   "Sure, here is the section:\nThe market is fragmented.",
			want: "The market is fragmented.",
		},
		{
			name: "trailing offer",
			in:   "The market is fragmented across three regions and two segments.\n\nLet me know if you would like more detail.",
			want: "The market is fragmented across three regions and two segments.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanMetaFromLLMResponse(tt.in); got != tt.want {
				t.Errorf("CleanMetaFromLLMResponse() = %q, want %q", got, tt.want)
			}
		})
	}
}
