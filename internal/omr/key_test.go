package omr

import (
	"maps"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		n          int
		want       Sheet
		wantFormat KeyFormat
	}{
		{
			name: "empty", text: "", n: 3,
			want:       Sheet{1: NA, 2: NA, 3: NA},
			wantFormat: FormatEmpty,
		},
		{
			name: "whitespace only", text: " \n\t ", n: 2,
			want:       Sheet{1: NA, 2: NA},
			wantFormat: FormatEmpty,
		},
		{
			name: "dense reads NA as two letters", text: "NA NA", n: 4,
			want:       Sheet{1: NA, 2: A, 3: NA, 4: A},
			wantFormat: FormatDense,
		},
		{
			name: "tokens read NA as one answer", text: "NA, NA", n: 2,
			want:       Sheet{1: NA, 2: NA},
			wantFormat: FormatTokens,
		},
		{
			name: "numbered pairs", text: "1:A, 2:B", n: 2,
			want:       Sheet{1: A, 2: B},
			wantFormat: FormatNumbered,
		},
		{
			name: "numbered mixed separators", text: "1:a\n2 = b\n3- NA\n4-d", n: 5,
			want:       Sheet{1: A, 2: B, 3: NA, 4: D, 5: NA},
			wantFormat: FormatNumbered,
		},
		{
			name: "numbered out of range ignored", text: "0:A 2:C 9:D", n: 3,
			want:       Sheet{1: NA, 2: C, 3: NA},
			wantFormat: FormatNumbered,
		},
		{
			name: "numbered last wins", text: "1:A 1:B", n: 1,
			want:       Sheet{1: B},
			wantFormat: FormatNumbered,
		},
		{
			name: "numbered surrounded by prose", text: "Key for set 2 -> q1: C, and q2=D please", n: 2,
			want:       Sheet{1: C, 2: D},
			wantFormat: FormatNumbered,
		},
		{
			name: "numbered beats dense", text: "ABC 1:D", n: 3,
			want:       Sheet{1: D, 2: NA, 3: NA},
			wantFormat: FormatNumbered,
		},
		{
			name: "dense", text: "ABCD", n: 4,
			want:       Sheet{1: A, 2: B, 3: C, 4: D},
			wantFormat: FormatDense,
		},
		{
			name: "dense with N", text: "ABCN", n: 4,
			want:       Sheet{1: A, 2: B, 3: C, 4: NA},
			wantFormat: FormatDense,
		},
		{
			name: "dense lowercase with separators", text: "a, b c,d", n: 4,
			want:       Sheet{1: A, 2: B, 3: C, 4: D},
			wantFormat: FormatDense,
		},
		{
			name: "dense length mismatch falls to tokens", text: "ABCD", n: 5,
			want:       Sheet{1: NA, 2: NA, 3: NA, 4: NA, 5: NA},
			wantFormat: FormatTokens,
		},
		{
			// Newlines are not stripped before the dense length check.
			name: "newline separated letters are tokens", text: "A\nB\nC", n: 3,
			want:       Sheet{1: A, 2: B, 3: C},
			wantFormat: FormatTokens,
		},
		{
			// The newline counts toward the length, so only three letters
			// fill four positions; the last defaults to NA.
			name: "dense newline counted in length", text: "AB\nC", n: 4,
			want:       Sheet{1: A, 2: B, 3: C, 4: NA},
			wantFormat: FormatDense,
		},
		{
			name: "tokens", text: "A B C", n: 5,
			want:       Sheet{1: A, 2: B, 3: C, 4: NA, 5: NA},
			wantFormat: FormatTokens,
		},
		{
			name: "tokens with NA and junk", text: "A, na, X, d", n: 4,
			want:       Sheet{1: A, 2: NA, 3: NA, 4: D},
			wantFormat: FormatTokens,
		},
		{
			name: "tokens stop at n", text: "A B C D A B", n: 3,
			want:       Sheet{1: A, 2: B, 3: C},
			wantFormat: FormatTokens,
		},
		{
			name: "tokens single N is NA", text: "N, N, A, B", n: 3,
			want:       Sheet{1: NA, 2: NA, 3: A},
			wantFormat: FormatTokens,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKey(tt.text, tt.n)
			if !maps.Equal(got, tt.want) {
				t.Errorf("ParseKey(%q, %d) = %v, want %v", tt.text, tt.n, got, tt.want)
			}
			if f := FormatOf(tt.text, tt.n); f != tt.wantFormat {
				t.Errorf("FormatOf(%q, %d) = %q, want %q", tt.text, tt.n, f, tt.wantFormat)
			}
		})
	}
}

func TestParseKeyCoverage(t *testing.T) {
	inputs := []string{
		"",
		"1:A 2:B 500:C",
		"ABCDABCDAB",
		"A B C",
		"garbage !!! ###",
		"1:A\n\nBCD",
	}
	for _, text := range inputs {
		for _, n := range []int{1, 2, 10, 150, MaxQuestions} {
			key := ParseKey(text, n)
			if len(key) != n {
				t.Fatalf("ParseKey(%q, %d): %d entries", text, n, len(key))
			}
			for i := 1; i <= n; i++ {
				a, ok := key[i]
				if !ok {
					t.Fatalf("ParseKey(%q, %d): question %d missing", text, n, i)
				}
				if !a.IsLetter() && a != NA {
					t.Fatalf("ParseKey(%q, %d): question %d = %q", text, n, i, a)
				}
			}
		}
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := map[string]Answer{
		"a":    A,
		" B ":  B,
		"na":   NA,
		"NA":   NA,
		"N":    NA,
		"E":    NA,
		"AB":   NA,
		"":     NA,
		"\tc ": C,
	}
	for in, want := range tests {
		if got := normalizeToken(in); got != want {
			t.Errorf("normalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}
