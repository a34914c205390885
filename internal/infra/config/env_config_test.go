package config_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/jortega/taskdesk/internal/infra/config"
)

type testConfig struct {
	EnvConfig

	StringValue string `env:"STRING_VALUE" default:"default"`
	IntValue    int    `env:"INT_VALUE" default:"42"`
	BoolValue   bool   `env:"BOOL_VALUE" default:"true"`
	NoEnvTag    string
	Nested      testNestedConfig `envPrefix:"NESTED_"`
}

type testNestedConfig struct {
	Value string `env:"VALUE" default:"nested-default"`
}

type requiredConfig struct {
	EnvConfig

	Required string `env:"REQUIRED_VALUE"`
}

//nolint:paralleltest
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		prefix  string
		envVars map[string]string
		want    testConfig
		wantErr bool
	}{
		{
			name:    "uses default values when env vars not set",
			prefix:  "",
			envVars: map[string]string{},
			want: testConfig{
				StringValue: "default",
				IntValue:    42,
				BoolValue:   true,
				Nested:      testNestedConfig{Value: "nested-default"},
			},
		},
		{
			name:   "reads environment variables",
			prefix: "",
			envVars: map[string]string{
				"STRING_VALUE": "env-value",
				"INT_VALUE":    "123",
				"BOOL_VALUE":   "false",
				"NESTED_VALUE": "env-nested",
			},
			want: testConfig{
				StringValue: "env-value",
				IntValue:    123,
				BoolValue:   false,
				Nested:      testNestedConfig{Value: "env-nested"},
			},
		},
		{
			name:   "handles prefix correctly",
			prefix: "TASKDESK",
			envVars: map[string]string{
				"TASKDESK_STRING_VALUE": "prefixed-value",
			},
			want: testConfig{
				StringValue: "prefixed-value",
				IntValue:    42,
				BoolValue:   true,
				Nested:      testNestedConfig{Value: "nested-default"},
			},
		},
		{
			name:   "prefers more specific prefix",
			prefix: "TASKDESK_TASKSVC",
			envVars: map[string]string{
				"TASKDESK_STRING_VALUE":         "less-specific",
				"TASKDESK_TASKSVC_STRING_VALUE": "more-specific",
			},
			want: testConfig{
				StringValue: "more-specific",
				IntValue:    42,
				BoolValue:   true,
				Nested:      testNestedConfig{Value: "nested-default"},
			},
		},
		{
			name:   "falls back to less specific prefix",
			prefix: "TASKDESK_TASKSVC",
			envVars: map[string]string{
				"TASKDESK_STRING_VALUE": "less-specific",
			},
			want: testConfig{
				StringValue: "less-specific",
				IntValue:    42,
				BoolValue:   true,
				Nested:      testNestedConfig{Value: "nested-default"},
			},
		},
		{
			name:   "fails on invalid int value",
			prefix: "",
			envVars: map[string]string{
				"INT_VALUE": "not-a-number",
			},
			wantErr: true,
		},
		{
			name:   "fails on invalid bool value",
			prefix: "",
			envVars: map[string]string{
				"BOOL_VALUE": "not-a-bool",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			var cfg testConfig

			err := Parse(context.Background(), &cfg, tt.prefix)

			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}

			if err != nil {
				return
			}

			if cfg.StringValue != tt.want.StringValue ||
				cfg.IntValue != tt.want.IntValue ||
				cfg.BoolValue != tt.want.BoolValue ||
				cfg.Nested != tt.want.Nested {
				t.Errorf("Parse() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

//nolint:paralleltest
func TestParse_RequiredVariable(t *testing.T) {
	var cfg requiredConfig

	err := Parse(context.Background(), &cfg, "")
	if !errors.Is(err, ErrVarNotSet) {
		t.Errorf("Parse() error = %v, want ErrVarNotSet", err)
	}

	t.Setenv("REQUIRED_VALUE", "present")

	if err := Parse(context.Background(), &cfg, ""); err != nil {
		t.Errorf("Parse() error = %v, want nil", err)
	}

	if cfg.Required != "present" {
		t.Errorf("Parse() Required = %q, want %q", cfg.Required, "present")
	}
}

func TestParse_NotAStruct(t *testing.T) {
	t.Parallel()

	var notAStruct int

	if err := Parse(context.Background(), &notAStruct, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Parse() error = %v, want ErrInvalidConfig", err)
	}
}
