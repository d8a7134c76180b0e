package main

import (
	"testing"
	"time"

	"github.com/tigerbot-team/rover/pkg/drivetrain"
)

func TestDurationFor(t *testing.T) {
	table := []measurement{
		{duration: 100 * time.Millisecond, dir: drivetrain.Right, degrees: 30},
		{duration: 300 * time.Millisecond, dir: drivetrain.Left, degrees: 90},
	}
	d, ok := durationFor(table, 90)
	if !ok || d != 300*time.Millisecond {
		t.Fatalf("Expected 300ms, got %v %v", d, ok)
	}
	if _, ok := durationFor(nil, 90); ok {
		t.Fatal("Expected no estimate from an empty table")
	}
}
