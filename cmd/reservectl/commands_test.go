package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/dumxhh/play-book-app/internal/models"
	"github.com/dumxhh/play-book-app/internal/services"
)

func TestPrintSlots(t *testing.T) {
	var out bytes.Buffer
	printSlots(&out, models.ResourceGolf, "2030-06-01", 90, []services.SlotAvailability{
		{StartTime: "08:00", Available: true},
		{StartTime: "09:00", Available: false},
	})

	got := out.String()
	for _, want := range []string{"golf on 2030-06-01 (90 min)", "08:00  free", "09:00  taken", "1 of 2 start times free"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestSweepDefaults(t *testing.T) {
	cmd := sweepCmd()
	flag := cmd.Flags().Lookup("older-than")
	if flag == nil {
		t.Fatal("expected --older-than flag")
	}
	if flag.DefValue != (30 * time.Minute).String() {
		t.Fatalf("unexpected default %s", flag.DefValue)
	}
}

func TestAvailabilityRequiresResource(t *testing.T) {
	cmd := availabilityCmd()
	cmd.SetArgs([]string{"--date", "2030-06-01"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing --resource to fail")
	}
}
