// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package auth

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tallyboard/internal/config"
)

func hashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func TestStaffDirectory(t *testing.T) {
	dir, err := NewStaffDirectory([]config.StaffAccount{
		{Username: "ana", PasswordHash: hashPassword(t, "ana-password"), Role: RoleAdmin},
		{Username: "bo", PasswordHash: hashPassword(t, "bo-password"), Role: RoleStaff},
	})
	if err != nil {
		t.Fatalf("NewStaffDirectory() error = %v", err)
	}
	if dir.Len() != 2 {
		t.Errorf("Len() = %d, want 2", dir.Len())
	}

	tests := []struct {
		name     string
		user     string
		password string
		wantRole string
		wantErr  error
	}{
		{"admin", "ana", "ana-password", RoleAdmin, nil},
		{"staff", "bo", "bo-password", RoleStaff, nil},
		{"wrong password", "ana", "bo-password", "", ErrInvalidCredentials},
		{"unknown user", "cy", "whatever", "", ErrInvalidCredentials},
		{"empty password", "bo", "", "", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := dir.Authenticate(tt.user, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
			if role != tt.wantRole {
				t.Errorf("role = %q, want %q", role, tt.wantRole)
			}
		})
	}
}

func TestNewStaffDirectoryRejectsPlainText(t *testing.T) {
	_, err := NewStaffDirectory([]config.StaffAccount{{Username: "ana", PasswordHash: "hunter2", Role: RoleAdmin}})
	if err == nil {
		t.Fatal("expected error for non-bcrypt hash")
	}
}
