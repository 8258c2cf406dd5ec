package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
)

func periodTestCmd(from, to string) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("from", "", "")
	cmd.Flags().String("to", "", "")
	_ = cmd.Flags().Set("from", from)
	_ = cmd.Flags().Set("to", to)
	return cmd
}

func TestParsePeriodFlags(t *testing.T) {
	period, err := parsePeriodFlags(periodTestCmd("2024-01-01", "2024-02-01"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !period.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start: %v", period.Start)
	}
	if !period.End.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected end: %v", period.End)
	}
}

func TestParsePeriodFlags_Invalid(t *testing.T) {
	if _, err := parsePeriodFlags(periodTestCmd("not-a-date", "2024-02-01")); err == nil {
		t.Error("expected error for malformed from date")
	}
	if _, err := parsePeriodFlags(periodTestCmd("2024-02-01", "2024-01-01")); err == nil {
		t.Error("expected error when from is not before to")
	}
	if _, err := parsePeriodFlags(periodTestCmd("2024-01-01", "2024-01-01")); err == nil {
		t.Error("expected error for empty period")
	}
}
