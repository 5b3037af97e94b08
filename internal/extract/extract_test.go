package extract

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := stripCodeFences(c.in); got != c.expected {
				t.Errorf("stripCodeFences(%q) = %q, want %q", c.in, got, c.expected)
			}
		})
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Fatalf("expected client with explicit key, got %v", err)
	}
}
