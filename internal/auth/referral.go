package auth

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
)

// ReferralSource supplies the referral code attached to each login.
type ReferralSource interface {
	ReferralCode() (string, error)
}

// StaticReferral always returns the same code.
type StaticReferral string

// ReferralCode implements ReferralSource.
func (s StaticReferral) ReferralCode() (string, error) {
	return string(s), nil
}

// FileReferral reads the first non-empty line of Path on every call, so the
// file can be edited between identities. A missing or empty file yields
// Fallback; read errors return Fallback alongside the error.
type FileReferral struct {
	Path     string
	Fallback string
}

// ReferralCode implements ReferralSource.
func (f FileReferral) ReferralCode() (string, error) {
	if strings.TrimSpace(f.Path) == "" {
		return f.Fallback, nil
	}
	file, err := os.Open(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.Fallback, nil
		}
		return f.Fallback, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if code := strings.TrimSpace(scanner.Text()); code != "" {
			return code, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return f.Fallback, err
	}
	return f.Fallback, nil
}
