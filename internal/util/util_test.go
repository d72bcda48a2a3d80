// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestWriteFileAtomic_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	data := []byte(`{"auth_token":"abc"}`)

	if err := WriteFileAtomic(path, data, 0600, 0700); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != string(data) {
		t.Errorf("Content mismatch: got %q, want %q", content, data)
	}
}

func TestWriteFileAtomic_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs", "deep", "scope.json")

	if err := WriteFileAtomic(path, []byte("{}"), 0600, 0700); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("File not created: %v", err)
	}
}

func TestWriteFileAtomic_OverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	if err := WriteFileAtomic(path, []byte("first"), 0600, 0700); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0600, 0700); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "second" {
		t.Errorf("got %q, want %q", content, "second")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomic_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions only")
	}
	path := filepath.Join(t.TempDir(), "store.json")
	if err := WriteFileAtomic(path, []byte("x"), 0600, 0700); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

// =============================================================================
// DISPLAY TESTS
// =============================================================================

func TestFitWidth(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny", "hello", 2, "he"},
		{"zero", "hello", 0, ""},
		{"wide runes", "日本語テキスト", 7, "日本..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitWidth(tt.in, tt.width); got != tt.want {
				t.Errorf("FitWidth(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
		})
	}
}

func TestCellWidth(t *testing.T) {
	if got := CellWidth("abc"); got != 3 {
		t.Errorf("CellWidth(abc) = %d, want 3", got)
	}
	if got := CellWidth("日本"); got != 4 {
		t.Errorf("CellWidth(日本) = %d, want 4", got)
	}
}

func TestCountdown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{2 * time.Minute, "2:00"},
		{90 * time.Second, "1:30"},
		{5 * time.Second, "0:05"},
		{1500 * time.Millisecond, "0:01"},
		{-time.Second, "0:00"},
	}
	for _, tt := range tests {
		if got := Countdown(tt.in); got != tt.want {
			t.Errorf("Countdown(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHumanDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{4 * time.Minute, "4m"},
		{4*time.Minute + 30*time.Second, "4m 30s"},
		{-time.Minute, "0s"},
	}
	for _, tt := range tests {
		if got := HumanDuration(tt.in); got != tt.want {
			t.Errorf("HumanDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
