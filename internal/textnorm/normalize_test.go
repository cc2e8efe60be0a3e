package textnorm

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "Sales", "sales"},
		{"diacritics", "Señal Única", "senal unica"},
		{"uppercase accents", "OPERACIÓN", "operacion"},
		{"crlf run", "line one\r\n\r\nline two", "line one line two"},
		{"bare newlines", "a\nb\nc", "a b c"},
		{"colon spacing", "Ops : urgent", "ops:urgent"},
		{"colon no spacing kept", "Ops:urgent", "ops:urgent"},
		{"tab and space runs", "a \t  b", "a b"},
		{"leading trailing", "  padded  ", "padded"},
		{"only whitespace", " \r\n \t ", ""},
		{"mixed", "  Ventas : URGENTE\r\nsegundo   renglón ", "ventas:urgente segundo renglon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"", "Sales", "Señal Única", "a \r\n b : c", "  MIXTO\ttabs\nnewlines  ",
		"x \n y", "Ops : urgent : now", "ümläüts ÅÄÖ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}
