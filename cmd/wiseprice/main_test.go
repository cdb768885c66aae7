package main

import "testing"

func TestSetupLoggerAlwaysReturnsLogger(t *testing.T) {
	for _, env := range []string{envLocal, envDev, envProd, "staging", ""} {
		log := setupLogger(env)
		if log == nil {
			t.Fatalf("setupLogger(%q) returned nil", env)
		}
	}
}
