package judge

import "testing"

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "surrounding whitespace",
			in:   "\n  {\"a\": 1}  \n",
			want: `{"a": 1}`,
		},
		{
			name: "json fence",
			in:   "Scores below.\n```json\n{\"a\": 1}\n```\nDone.",
			want: `{"a": 1}`,
		},
		{
			name: "generic fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object",
			in:   `Sure! Here you go: {"a": 1} hope that helps`,
			want: `{"a": 1}`,
		},
		{
			name: "nested object",
			in:   `prefix {"a": {"b": 2}, "c": 3} suffix`,
			want: `{"a": {"b": 2}, "c": 3}`,
		},
		{
			name: "braces inside string values",
			in:   `{"reasoning": "uses { and } literally", "a": 1}`,
			want: `{"reasoning": "uses { and } literally", "a": 1}`,
		},
		{
			name: "escaped quote in string",
			in:   `noise {"reasoning": "said \"no\"", "a": 1} tail`,
			want: `{"reasoning": "said \"no\"", "a": 1}`,
		},
		{
			name: "no json at all",
			in:   "I cannot provide scores.",
			want: "",
		},
		{
			name: "unterminated object",
			in:   `{"a": 1`,
			want: "",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Fatalf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
