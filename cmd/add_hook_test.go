package cmd

import (
	"testing"

	"efpak/pkg/efpak"
)

func TestParseHookWhen(t *testing.T) {
	got, err := parseHookWhen("now,postx")
	if err != nil {
		t.Fatalf("parseHookWhen: %v", err)
	}
	want := efpak.HookWhenNow | efpak.HookWhenPostX
	if got != want {
		t.Errorf("parseHookWhen(\"now,postx\") = 0x%x, want 0x%x", got, want)
	}
}

func TestParseHookWhenRejectsUnknownTrigger(t *testing.T) {
	if _, err := parseHookWhen("now,whenever"); err == nil {
		t.Errorf("expected an error for an unknown trigger name")
	}
}
