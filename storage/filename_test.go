package storage

import "testing"

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`..\..\windows\system32`, "windows_system32"},
		{"i contain cool ümläuts.txt", "i_contain_cool_umlauts.txt"},
		{"scan-01.nii.gz", "scan-01.nii.gz"},
		{".bashrc", "bashrc"},
		{"__init__.py", "init__.py"},
		{"CON.txt", "_CON.txt"},
		{"report (final)!.pdf", "report_final.pdf"},
		{"../..", ""},
		{"日本語", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_Idempotent(t *testing.T) {
	for _, in := range []string{"a b c.txt", "../x", "CON", "_PRN.log", "ok.txt"} {
		once := SanitizeFilename(in)
		if twice := SanitizeFilename(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
