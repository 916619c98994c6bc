package app

import "testing"

func TestRefreshTestMode(t *testing.T) {
	t.Setenv(TestModeEnv, "true")
	RefreshTestMode()
	if !InTestMode() {
		t.Fatal("expected test mode")
	}
	t.Setenv(TestModeEnv, "0")
	RefreshTestMode()
	if InTestMode() {
		t.Fatal("expected test mode off")
	}
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
}
