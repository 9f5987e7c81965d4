package model

import "time"

// PhoneRole identifies what a phone entry represents on a contact.
type PhoneRole string

const (
	PhoneRolePrimary PhoneRole = "primary"
	// PhoneRoleLID is the directory's alternate (linked) identifier for the subscriber.
	PhoneRoleLID PhoneRole = "lid"
)

// Phone is one role-tagged phone entry of a contact.
type Phone struct {
	Number string    `json:"number"`
	Role   PhoneRole `json:"type"`
}

// Contact is a persisted contact of a company. It is the dedup target of an import.
type Contact struct {
	ID           string     `json:"id"`
	CompanyID    string     `json:"company_id"`
	Name         string     `json:"name"`
	FirstName    string     `json:"first_name,omitempty"`
	LastName     string     `json:"last_name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Phones       []Phone    `json:"phones,omitempty"`
	Tags         []string   `json:"tags"`
	Position     string     `json:"position,omitempty"`
	Organization string     `json:"organization,omitempty"`
	Notes        []string   `json:"notes"`
	Value        *float64   `json:"value,omitempty"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	Nickname     string     `json:"nickname,omitempty"`
	Source       string     `json:"source,omitempty"`
	ImportName   string     `json:"import_name,omitempty"`
	Checked      bool       `json:"checked"`
	NumberExists bool       `json:"number_exists"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PhoneNumbers returns the primary phone followed by every phone list entry.
func (c *Contact) PhoneNumbers() []string {
	out := make([]string, 0, len(c.Phones)+1)
	if c.Phone != "" {
		out = append(out, c.Phone)
	}
	for _, p := range c.Phones {
		if p.Number != "" {
			out = append(out, p.Number)
		}
	}
	return out
}

// PreparedContact is the typed, normalized shape of an incoming record. It is
// mutated in place during validation and enrichment and ends either queued for
// insert or merged into an existing Contact.
type PreparedContact struct {
	LocalID      string
	Name         string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Phones       []Phone
	TagIDs       []string
	Position     string
	Organization string
	Notes        []string
	Value        *float64
	Checked      bool
	NumberExists bool
	AvatarURL    string
	Nickname     string
}

// SetPrimaryPhone replaces the primary phone and its primary phone entry.
func (p *PreparedContact) SetPrimaryPhone(number string) {
	p.Phone = number
	for i := range p.Phones {
		if p.Phones[i].Role == PhoneRolePrimary {
			p.Phones[i].Number = number
			return
		}
	}
	if number != "" {
		p.Phones = append([]Phone{{Number: number, Role: PhoneRolePrimary}}, p.Phones...)
	}
}

// HasPhone reports whether number is already one of the contact's phones.
func (p *PreparedContact) HasPhone(number string) bool {
	if p.Phone == number {
		return true
	}
	for _, ph := range p.Phones {
		if ph.Number == number {
			return true
		}
	}
	return false
}

// AddTag appends a tag id unless it is already present.
func (p *PreparedContact) AddTag(id string) {
	if id == "" {
		return
	}
	for _, t := range p.TagIDs {
		if t == id {
			return
		}
	}
	p.TagIDs = append(p.TagIDs, id)
}

// PhoneNumbers returns the primary phone followed by every phone list entry.
func (p *PreparedContact) PhoneNumbers() []string {
	out := make([]string, 0, len(p.Phones)+1)
	if p.Phone != "" {
		out = append(out, p.Phone)
	}
	for _, ph := range p.Phones {
		if ph.Number != "" && ph.Number != p.Phone {
			out = append(out, ph.Number)
		}
	}
	return out
}

// ToContact converts the prepared contact into a new Contact row.
func (p *PreparedContact) ToContact(id, companyID, importName string, now time.Time) Contact {
	tags := p.TagIDs
	if tags == nil {
		tags = []string{}
	}
	notes := p.Notes
	if notes == nil {
		notes = []string{}
	}
	return Contact{
		ID:           id,
		CompanyID:    companyID,
		Name:         p.Name,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Phone:        p.Phone,
		Phones:       p.Phones,
		Tags:         tags,
		Position:     p.Position,
		Organization: p.Organization,
		Notes:        notes,
		Value:        p.Value,
		AvatarURL:    p.AvatarURL,
		Nickname:     p.Nickname,
		Source:       ContactSourceImport,
		ImportName:   importName,
		Checked:      p.Checked,
		NumberExists: p.NumberExists,
		CreatedAt:    now,
	}
}

// ContactSourceImport marks contacts created by the bulk importer.
const ContactSourceImport = "import"
