// Package vpn provides VPN connection management functionality.
// This file contains the Profile type describing one OpenVPN connection.
package vpn

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yllada/openvpn-management/common"
)

// Profile represents a VPN connection profile.
type Profile struct {
	// ID is a unique identifier for the profile. It keys stored credentials.
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable name for the profile.
	Name string `json:"name" yaml:"name"`
	// Username is the optional username for authentication.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	// StaticChallenge is the prompt shown for the one-time code. Setting it
	// enables the static-challenge option.
	StaticChallenge string `json:"static_challenge,omitempty" yaml:"static_challenge,omitempty"`
	// RequiresOTP indicates the server expects a one-time code on connect.
	RequiresOTP bool `json:"requires_otp" yaml:"requires_otp"`
	// SavePassword indicates whether to save the password in the keyring.
	SavePassword bool `json:"save_password" yaml:"save_password"`
}

// LoadProfile reads a profile from a YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ToJSON converts the profile to a JSON string.
// Useful for debugging and logging.
func (p *Profile) ToJSON() string {
	data, _ := json.MarshalIndent(p, "", "  ")
	return string(data)
}

// Validate checks if the profile has all required fields.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: profile id is required", common.ErrInvalidProfile)
	}
	if p.Name == "" {
		return fmt.Errorf("%w: profile name is required", common.ErrInvalidProfile)
	}
	if p.RequiresOTP && p.StaticChallenge == "" {
		return fmt.Errorf("%w: one-time codes need a static challenge prompt", common.ErrInvalidProfile)
	}
	return nil
}
