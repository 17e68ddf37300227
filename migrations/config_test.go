package main

import (
	"os"
	"strings"
	"testing"
)

// TestLoadConfig tests the LoadConfig function with various scenarios
func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name        string
		envVars     map[string]string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, config *Config)
	}{
		{
			name: "default values when DATABASE_PATH provided",
			envVars: map[string]string{
				"DATABASE_PATH":   "/var/lib/telemetryd/store.db",
				"MIGRATION_TABLE": "",
			},
			wantErr: false,
			validate: func(t *testing.T, config *Config) {
				if config.DatabasePath != "/var/lib/telemetryd/store.db" {
					t.Errorf("Expected DATABASE_PATH from env var, got %s", config.DatabasePath)
				}
				if config.MigrationTable != "schema_migrations" {
					t.Errorf("Expected default MIGRATION_TABLE, got %s", config.MigrationTable)
				}
			},
		},
		{
			name: "custom migration table",
			envVars: map[string]string{
				"DATABASE_PATH":   "/var/lib/telemetryd/store.db",
				"MIGRATION_TABLE": "custom_migrations",
			},
			wantErr: false,
			validate: func(t *testing.T, config *Config) {
				if config.DatabasePath != "/var/lib/telemetryd/store.db" {
					t.Errorf("Expected custom DATABASE_PATH, got %s", config.DatabasePath)
				}
				if config.MigrationTable != "custom_migrations" {
					t.Errorf("Expected custom MIGRATION_TABLE, got %s", config.MigrationTable)
				}
			},
		},
		{
			name: "validation fails with empty DATABASE_PATH",
			envVars: map[string]string{
				"DATABASE_PATH":   "",
				"MIGRATION_TABLE": "migrations",
			},
			wantErr:     true,
			errContains: "DATABASE_PATH cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup environment variables
			originalEnv := make(map[string]string)
			for key, value := range tt.envVars {
				originalEnv[key] = os.Getenv(key)
				if value == "" {
					os.Unsetenv(key)
				} else {
					os.Setenv(key, value)
				}
			}

			// Cleanup function
			defer func() {
				// Restore original environment
				for key, originalValue := range originalEnv {
					if originalValue == "" {
						os.Unsetenv(key)
					} else {
						os.Setenv(key, originalValue)
					}
				}
			}()

			// Test LoadConfig
			config, err := LoadConfig()

			// Validate error expectations
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Expected error to contain '%s', got: %v", tt.errContains, err)
				}
				return
			}

			// Validate success case
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if config == nil {
				t.Error("Expected config but got nil")
				return
			}

			// Run custom validation if provided
			if tt.validate != nil {
				tt.validate(t, config)
			}
		})
	}
}

// TestConfigValidate tests the Validate method with various configurations
func TestConfigValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name        string
		config      *Config
		wantErr     bool
		errContains string
	}{
		{
			name: "valid configuration",
			config: &Config{
				DatabasePath:   "/var/lib/telemetryd/store.db",
				MigrationTable: "migrations",
			},
			wantErr: false,
		},
		{
			name: "empty DATABASE_PATH",
			config: &Config{
				DatabasePath:   "",
				MigrationTable: "migrations",
			},
			wantErr:     true,
			errContains: "DATABASE_PATH cannot be empty",
		},
		{
			name: "empty MIGRATION_TABLE",
			config: &Config{
				DatabasePath:   "/var/lib/telemetryd/store.db",
				MigrationTable: "",
			},
			wantErr:     true,
			errContains: "MIGRATION_TABLE cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Test validation
			err := tt.config.Validate()

			// Check error expectations
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
					return
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Expected error to contain '%s', got: %v", tt.errContains, err)
				}
				return
			}

			// Check success case
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
		})
	}
}

// TestConfigString tests the String method
func TestConfigString(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		config   *Config
		contains []string
	}{
		{
			name: "normal configuration",
			config: &Config{
				DatabasePath:   "/var/lib/telemetryd/store.db",
				MigrationTable: "migrations",
			},
			contains: []string{
				"Config{",
				"DatabasePath: /var/lib/telemetryd/store.db",
				"MigrationTable: migrations",
			},
		},
		{
			name: "empty database path",
			config: &Config{
				DatabasePath:   "",
				MigrationTable: "migrations",
			},
			contains: []string{
				"Config{",
				"DatabasePath:",
				"MigrationTable: migrations",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.String()

			for _, substr := range tt.contains {
				if !strings.Contains(result, substr) {
					t.Errorf("Expected result to contain '%s', got: %s", substr, result)
				}
			}
		})
	}
}

// TestGetEnvOrDefault tests the getEnvOrDefault function
func TestGetEnvOrDefault(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		setEnv       bool
		expected     string
	}{
		{
			name:         "environment variable exists",
			key:          "TEST_ENV_VAR",
			defaultValue: "default",
			envValue:     "custom_value",
			setEnv:       true,
			expected:     "custom_value",
		},
		{
			name:         "environment variable not set",
			key:          "UNSET_ENV_VAR",
			defaultValue: "default_value",
			setEnv:       false,
			expected:     "default_value",
		},
		{
			name:         "environment variable set to empty string",
			key:          "EMPTY_ENV_VAR",
			defaultValue: "default_value",
			envValue:     "",
			setEnv:       true,
			expected:     "default_value",
		},
		{
			name:         "environment variable with whitespace",
			key:          "WHITESPACE_ENV_VAR",
			defaultValue: "default",
			envValue:     "  value_with_spaces  ",
			setEnv:       true,
			expected:     "  value_with_spaces  ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Store original value
			originalValue := os.Getenv(tt.key)
			defer func() {
				if originalValue == "" {
					os.Unsetenv(tt.key)
				} else {
					os.Setenv(tt.key, originalValue)
				}
			}()

			// Set up environment
			if tt.setEnv {
				os.Setenv(tt.key, tt.envValue)
			} else {
				os.Unsetenv(tt.key)
			}

			// Test function
			result := getEnvOrDefault(tt.key, tt.defaultValue)

			if result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

// TestConfigIntegration tests the full integration flow for embedded mode
func TestConfigIntegration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("embedded configuration workflow", func(t *testing.T) {
		// Set environment variables for embedded mode
		originalPath := os.Getenv("DATABASE_PATH")
		originalTable := os.Getenv("MIGRATION_TABLE")

		os.Setenv("DATABASE_PATH", "/var/lib/telemetryd/test.db")
		os.Setenv("MIGRATION_TABLE", "test_migrations")

		defer func() {
			// Restore environment
			if originalPath == "" {
				os.Unsetenv("DATABASE_PATH")
			} else {
				os.Setenv("DATABASE_PATH", originalPath)
			}
			if originalTable == "" {
				os.Unsetenv("MIGRATION_TABLE")
			} else {
				os.Setenv("MIGRATION_TABLE", originalTable)
			}
		}()

		// Load configuration
		config, err := LoadConfig()
		if err != nil {
			t.Fatalf("Unexpected error loading config: %v", err)
		}

		// Validate configuration content
		if config.DatabasePath != "/var/lib/telemetryd/test.db" {
			t.Errorf("Expected custom DATABASE_PATH, got %s", config.DatabasePath)
		}
		if config.MigrationTable != "test_migrations" {
			t.Errorf("Expected custom MIGRATION_TABLE, got %s", config.MigrationTable)
		}

		// Test string representation
		configStr := config.String()
		if !strings.Contains(configStr, "/var/lib/telemetryd/test.db") {
			t.Errorf("Expected database path in config string, got: %s", configStr)
		}
	})
}
