package security

import "testing"

func TestTextSanitizer_Sanitize(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列はそのまま", "", ""},
		{"プレーンテキストは変更しない", "簽到成功", "簽到成功"},
		{"タグは除去される", "<b>請先申請加班</b>", "請先申請加班"},
		{"brで区切られた語は連結しない", "行1<br>行2", "行1 行2"},
		{"scriptは内容ごと除去される", "ok<script>alert(1)</script>", "ok"},
		{"文字実体は元に戻す", `a & b "c"`, `a & b "c"`},
		{"連続空白は1つにまとめる", "a \n\t b", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
