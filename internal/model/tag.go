package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// TagType classifies how a tag was created.
type TagType string

const (
	TagTypeManual TagType = "manual"
	TagTypeImport TagType = "import"
)

// Tag is a company-scoped classification label. Names are unique per company
// after case folding and whitespace collapsing.
type Tag struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Type      TagType   `json:"type"`
	IsSmart   bool      `json:"is_smart"`
	CreatedAt time.Time `json:"created_at"`
}

// TagKey is the uniqueness key of a tag name: Unicode case folded with
// whitespace runs collapsed to one space and trimmed.
func TagKey(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// Well-known system tag slugs applied by directory validation.
const (
	SystemTagInvalidNumber   = "invalid_number"
	SystemTagNumberNotExists = "number_not_exists"
)

// SystemTag is a global tag looked up by slug.
type SystemTag struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Session is a configured messaging channel of a company.
type Session struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	IsDefault bool   `json:"is_default"`
}

// SessionStatusWorking is the status of a connected channel.
const SessionStatusWorking = "WORKING"
