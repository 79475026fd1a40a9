package phone

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when the caller does not pass one.
const DefaultRegion = "IN"

// Number is a parsed phone number.
type Number struct {
	E164        string `json:"e164"`
	National    string `json:"national"`
	Region      string `json:"region"`
	NationalLen int    `json:"-"`
	IsValid     bool   `json:"isValid"`
}

// Parse parses raw using region for numbers written without a country code.
// Numbers that cannot possibly exist (wrong length) are rejected; IsValid
// additionally reports whether the number falls in an allocated range.
func Parse(raw, region string) (*Number, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("phone number cannot be empty")
	}
	if region == "" {
		region = DefaultRegion
	}

	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phone number: %w", err)
	}
	if !phonenumbers.IsPossibleNumber(parsed) {
		return nil, fmt.Errorf("invalid phone number")
	}

	national := strconv.FormatUint(parsed.GetNationalNumber(), 10)
	return &Number{
		E164:        phonenumbers.Format(parsed, phonenumbers.E164),
		National:    phonenumbers.Format(parsed, phonenumbers.NATIONAL),
		Region:      phonenumbers.GetRegionCodeForNumber(parsed),
		NationalLen: len(national),
		IsValid:     phonenumbers.IsValidNumber(parsed),
	}, nil
}

// Normalize returns raw in E.164 format.
func Normalize(raw, region string) (string, error) {
	n, err := Parse(raw, region)
	if err != nil {
		return "", err
	}
	return n.E164, nil
}
