package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"stats key", "ledger:stats:acc-1", false},
		{"monthly key", "ledger:monthly:acc-1:2024", false},
		{"valid unicode", "café", false},
		{"empty key", "", true},
		{"control char null", "key\x00value", true},
		{"control char newline", "key\nvalue", true},
		{"DEL character", "key\x7fvalue", true},
		{"leading space", " key", true},
		{"trailing space", "key ", true},
		{"exactly max", strings.Repeat("a", MaxKeyLength), false},
		{"one over max", strings.Repeat("a", MaxKeyLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Expected ErrInvalidKey, got %v", err)
			}
		})
	}
}

func TestKeyPattern(t *testing.T) {
	tests := []struct {
		name      string
		prefix    string
		separator string
		parts     []string
		expected  string
	}{
		{"no parts", "ledger", ":", nil, "ledger"},
		{"one part", "ledger", ":", []string{"stats"}, "ledger:stats"},
		{"many parts", "ledger", ":", []string{"monthly", "acc", "2024"}, "ledger:monthly:acc:2024"},
		{"default separator", "ledger", "", []string{"stats"}, "ledger:stats"},
		{"custom separator", "ledger", "/", []string{"a", "b"}, "ledger/a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp := NewKeyPattern(tt.prefix, tt.separator)
			if got := kp.Build(tt.parts...); got != tt.expected {
				t.Errorf("Build(%v) = %q, want %q", tt.parts, got, tt.expected)
			}
		})
	}
}
