package auth

import (
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HashKey(tt.input); got != tt.expected {
				t.Errorf("HashKey() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestHashKey_TrimsWhitespace(t *testing.T) {
	if HashKey("  ya29.token  ") != HashKey("ya29.token") {
		t.Error("HashKey should ignore surrounding whitespace")
	}
}

func TestHashKey_Shape(t *testing.T) {
	hash1 := HashKey("token-1")
	hash2 := HashKey("token-2")

	if len(hash1) != 64 {
		t.Errorf("HashKey() returned %d chars, want 64", len(hash1))
	}
	if hash1 == hash2 {
		t.Error("different tokens produced the same hash")
	}
	if hash1 != HashKey("token-1") {
		t.Error("HashKey is not deterministic")
	}
}
