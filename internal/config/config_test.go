package config

import (
	"os"
	"testing"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("NONEXISTENT_REQUIRED_VAR")
}

func TestMustGetEnv_ReturnsValue(t *testing.T) {
	os.Setenv("TEST_REQUIRED", "value123")
	defer os.Unsetenv("TEST_REQUIRED")

	result := mustGetEnv("TEST_REQUIRED")
	if result != "value123" {
		t.Errorf("Expected 'value123', got %q", result)
	}
}

func TestGetEnvAsBoolOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal bool
		expected   bool
	}{
		{"parses false", "TEST_BOOL_1", "false", true, false},
		{"parses true", "TEST_BOOL_2", "1", false, true},
		{"uses default for empty", "TEST_BOOL_3", "", true, true},
		{"uses default for garbage", "TEST_BOOL_4", "maybe", false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				os.Setenv(tc.key, tc.envValue)
				defer os.Unsetenv(tc.key)
			}

			result := getEnvAsBoolOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %v, got %v", tc.expected, result)
			}
		})
	}
}

func TestValidateProvider(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"gemini with key", Config{LLMProvider: "gemini", GeminiAPIKey: "k"}, false},
		{"gemini without key", Config{LLMProvider: "gemini"}, true},
		{"openai with key", Config{LLMProvider: "openai", OpenAIAPIKey: "k"}, false},
		{"openai without key", Config{LLMProvider: "openai", GeminiAPIKey: "k"}, true},
		{"unknown provider", Config{LLMProvider: "llama"}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validateProvider()
			if (err != nil) != tc.wantErr {
				t.Errorf("validateProvider() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestModelID(t *testing.T) {
	cfg := Config{LLMProvider: "openai", OpenAIModel: "gpt-x", GeminiModel: "gemini-y"}
	if got := cfg.ModelID(); got != "gpt-x" {
		t.Errorf("Expected 'gpt-x', got %q", got)
	}

	cfg.LLMProvider = "gemini"
	if got := cfg.ModelID(); got != "gemini-y" {
		t.Errorf("Expected 'gemini-y', got %q", got)
	}
}
