package security

import (
	"strings"
	"testing"
)

// TestSanitize_StripsTags はHTMLタグが除去されテキストのみ残ることを検証する。
func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンテキストはそのまま",
			input: "Calculus Textbook 3rd edition",
			want:  "Calculus Textbook 3rd edition",
		},
		{
			name:  "装飾タグは除去される",
			input: "<b>Like new</b> lab coat",
			want:  "Like new lab coat",
		},
		{
			name:  "アンパサンドはエスケープされずに残る",
			input: "Pens & Pencils",
			want:  "Pens & Pencils",
		},
		{
			name:  "前後の空白は除去される",
			input: "   spam listing  ",
			want:  "spam listing",
		},
		{
			name:  "空文字列",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_RemovesScript はscriptタグが中身ごと除去されることを検証する。
func TestSanitize_RemovesScript(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(`<script>alert("xss")</script>Broken charger`)
	if strings.Contains(got, "alert") || strings.Contains(got, "<script") {
		t.Errorf("script content should be removed, got %q", got)
	}
	if !strings.Contains(got, "Broken charger") {
		t.Errorf("text should be preserved, got %q", got)
	}
}

// TestSanitize_RemovesEventHandlers はイベント属性付きのタグが除去されることを検証する。
func TestSanitize_RemovesEventHandlers(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(`<img src=x onerror="alert(1)">Desk lamp`)
	if strings.Contains(got, "onerror") || strings.Contains(got, "<img") {
		t.Errorf("tag should be removed, got %q", got)
	}
	if got != "Desk lamp" {
		t.Errorf("Sanitize() = %q, want %q", got, "Desk lamp")
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := "<em>Used</em> oscilloscope probe"
	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("not idempotent: %q != %q", first, second)
	}
}
