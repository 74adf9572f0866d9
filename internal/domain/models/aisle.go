package models

import (
	"regexp"
	"strings"
)

var colorHexPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Aisle is a named storage location grouping medicines.
type Aisle struct {
	ID          string  `bson:"_id" json:"id"`
	Name        string  `bson:"name" json:"name"`
	Description *string `bson:"description,omitempty" json:"description,omitempty"`
	ColorHex    string  `bson:"colorHex" json:"color_hex"`
	Icon        string  `bson:"icon" json:"icon"`
}

// Validate checks the aisle's own fields. Name uniqueness needs the whole
// collection and is enforced by the aisle service.
func (a Aisle) Validate() error {
	verr := &ValidationError{}

	if strings.TrimSpace(a.Name) == "" {
		verr.Add("name", "must not be empty")
	}
	if a.ColorHex != "" && !colorHexPattern.MatchString(a.ColorHex) {
		verr.Add("colorHex", "must be formatted as #RRGGBB")
	}

	return verr.OrNil()
}

// SameName compares aisle names case-insensitively, ignoring surrounding spaces.
func SameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
