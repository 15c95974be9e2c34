package textproc

import "testing"

func TestCleanTextRemovesArtifacts(t *testing.T) {
	in := "Revenue Summary Page 3 of 120\n42\nTotal revenue increased."
	got := CleanText(in)
	if want := "Revenue Summary \n\nTotal revenue increased."; got != want {
		t.Errorf("CleanText() = %q, want %q", got, want)
	}
}

func TestCleanTextNormalizesCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"$ 1,234", "$1,234"},
		{"$1, 234", "$1,234"},
		{"budget of $  5,000,000 total", "budget of $5,000,000 total"},
		{"12 , 345", "12,345"},
	}
	for _, tc := range cases {
		if got := CleanText(tc.in); got != tc.want {
			t.Errorf("CleanText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	got := CleanText("a    b\n\n\n\n\nc")
	if want := "a b\n\nc"; got != want {
		t.Errorf("CleanText() = %q, want %q", got, want)
	}
}

func TestFormatTable(t *testing.T) {
	in := "Department    FY24    FY25\nPolice    $10,000    $12,000"
	want := "Department | FY24 | FY25\nPolice | $10,000 | $12,000"
	if got := FormatTable(in); got != want {
		t.Errorf("FormatTable() = %q, want %q", got, want)
	}
}
