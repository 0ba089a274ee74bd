package cache

import (
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.StaleTime != 5*time.Second {
		t.Fatalf("Expected 5s stale time, got %v", opts.StaleTime)
	}
	if opts.ContextTimeout == 0 {
		t.Fatal("ContextTimeout should not be zero")
	}
	if opts.RetainDataOnError {
		t.Fatal("RetainDataOnError should be opt-in")
	}
	if err := opts.Validate(); err != nil {
		t.Fatalf("Default options should be valid: %v", err)
	}
}

func TestDefaultLocalCacheConfig(t *testing.T) {
	config := DefaultLocalCacheConfig()

	if config.NumCounters <= 0 {
		t.Fatal("NumCounters should be positive")
	}
	if config.MaxCost <= 0 {
		t.Fatal("MaxCost should be positive")
	}
	if config.BufferItems != 64 {
		t.Fatalf("Expected BufferItems to be 64, got %d", config.BufferItems)
	}
	if config.MaxSize <= 0 {
		t.Fatal("MaxSize should be positive")
	}
}

func TestOptionsValidate(t *testing.T) {
	withFactory := DefaultOptions()
	withFactory.LocalCacheFactory = NewLFUCacheFactory(DefaultLocalCacheConfig())

	badFactoryConfig := withFactory
	badFactoryConfig.LocalCacheConfig.MaxCost = 0

	tests := []struct {
		name  string
		opts  Options
		valid bool
	}{
		{
			name:  "Valid options",
			opts:  DefaultOptions(),
			valid: true,
		},
		{
			name:  "Zero value",
			opts:  Options{},
			valid: true,
		},
		{
			name:  "Custom factory",
			opts:  withFactory,
			valid: true,
		},
		{
			name:  "Negative stale time",
			opts:  Options{StaleTime: -time.Second},
			valid: false,
		},
		{
			name:  "Negative timeout",
			opts:  Options{ContextTimeout: -time.Second},
			valid: false,
		},
		{
			name:  "Factory without budget",
			opts:  badFactoryConfig,
			valid: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.opts.Validate()
			if test.valid && err != nil {
				t.Fatalf("Expected valid options, got error: %v", err)
			}
			if !test.valid && err == nil {
				t.Fatal("Expected invalid options, got no error")
			}
		})
	}
}
