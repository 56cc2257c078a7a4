package util

import "testing"

func TestParseIntDefault(t *testing.T) {
    if got := ParseIntDefault("42", 7); got != 42 {
        t.Fatalf("expected 42, got %d", got)
    }
    if got := ParseIntDefault("", 7); got != 7 {
        t.Fatalf("expected default for empty, got %d", got)
    }
    if got := ParseIntDefault("abc", 7); got != 7 {
        t.Fatalf("expected default for invalid, got %d", got)
    }
}
