// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tallyboard/internal/config"
)

// ErrInvalidCredentials is returned for an unknown user or wrong password.
// The two cases are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("auth: invalid username or password")

// dummyHash is compared against when the username is unknown so that both
// failure paths cost one bcrypt comparison.
var dummyHash = []byte("$2a$12$C6UzMDM.H6dfI/f/IKcEeO3m1bF8pQ0hG7e2Zx0m5yYcSXx1l0F7K")

type staffAccount struct {
	hash []byte
	role string
}

// StaffDirectory verifies staff logins against bcrypt hashes from config.
type StaffDirectory struct {
	accounts map[string]staffAccount
}

// NewStaffDirectory indexes the configured accounts.
func NewStaffDirectory(accounts []config.StaffAccount) (*StaffDirectory, error) {
	d := &StaffDirectory{accounts: make(map[string]staffAccount, len(accounts))}
	for _, a := range accounts {
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return nil, fmt.Errorf("staff account %q: %w", a.Username, err)
		}
		d.accounts[a.Username] = staffAccount{hash: []byte(a.PasswordHash), role: a.Role}
	}
	return d, nil
}

// Len returns the number of accounts.
func (d *StaffDirectory) Len() int {
	return len(d.accounts)
}

// Authenticate returns the role of username when password matches.
func (d *StaffDirectory) Authenticate(username, password string) (string, error) {
	acct, ok := d.accounts[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return acct.role, nil
}
