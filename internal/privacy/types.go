package privacy

import (
	"errors"
	"fmt"
)

// Category identifies one family of identifying information. The numeric
// value is the category's position in the redaction order.
type Category int

const (
	CategoryDate Category = iota
	CategoryAddress
	CategoryPhone
	CategoryID
	CategoryName
)

// CanonicalOrder is the only order in which rules may run. Structured tokens
// go first so the unconstrained name matchers see as little noise as possible.
var CanonicalOrder = []Category{
	CategoryDate,
	CategoryAddress,
	CategoryPhone,
	CategoryID,
	CategoryName,
}

var categoryNames = map[Category]string{
	CategoryDate:    "dates",
	CategoryAddress: "addresses",
	CategoryPhone:   "phones",
	CategoryID:      "ids",
	CategoryName:    "names",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText encodes the category by name
func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown category: %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a category name
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory resolves a detector name as used in configuration
func ParseCategory(name string) (Category, error) {
	for category, n := range categoryNames {
		if n == name {
			return category, nil
		}
	}
	return 0, fmt.Errorf("unknown detector: %s", name)
}

// ErrRuleOrder is returned when a rule list is not in canonical order
var ErrRuleOrder = errors.New("redaction rules out of canonical order")

// Event records one successful redaction. Events are appended in match order
// and never modified afterwards.
type Event struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Value    string   `json:"value"`
}

// Result is the output of a single pipeline run
type Result struct {
	Text   string  `json:"text"`
	Events []Event `json:"events"`
}

// LabelCount is a PII-free aggregate of the event log
type LabelCount struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
}
