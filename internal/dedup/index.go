// Package dedup classifies incoming contacts against the existing contacts
// of a company by every phone representation.
package dedup

import (
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/phone"
)

// Options controls index construction.
type Options struct {
	// Verbose logs every variant collision. Off, only a summary is logged.
	Verbose bool
	// Logger defaults to zap.L().
	Logger *zap.Logger
}

// Index maps phone variants to contacts. The first contact to claim a
// variant keeps it.
type Index struct {
	byVariant  map[string]*model.Contact
	contacts   int
	collisions int
	log        *zap.Logger
	verbose    bool
}

// Build indexes every variant of the primary phone and phone list of each
// contact.
func Build(contacts []model.Contact, opts Options) *Index {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	ix := &Index{
		byVariant: make(map[string]*model.Contact, len(contacts)*2),
		log:       log,
		verbose:   opts.Verbose,
	}

	for i := range contacts {
		c := contacts[i]
		ix.Claim(&c)
	}

	log.Info("dedup: index built",
		zap.Int("contacts", ix.contacts),
		zap.Int("variants", len(ix.byVariant)),
		zap.Int("collisions", ix.collisions),
	)
	return ix
}

// Claim registers c under each of its variants not yet claimed and returns
// how many were added.
func (ix *Index) Claim(c *model.Contact) int {
	added := 0
	for _, number := range c.PhoneNumbers() {
		for _, v := range phone.Variants(number) {
			owner, taken := ix.byVariant[v]
			if !taken {
				ix.byVariant[v] = c
				added++
				continue
			}
			if owner != c && owner.ID != c.ID {
				ix.collisions++
				if ix.verbose {
					ix.log.Debug("dedup: variant already claimed",
						zap.String("variant", v),
						zap.String("owner", owner.ID),
						zap.String("contact", c.ID),
					)
				}
			}
		}
	}
	if added > 0 {
		ix.contacts++
	}
	return added
}

// Lookup returns the first contact found under any variant of phones, or nil.
func (ix *Index) Lookup(phones ...string) *model.Contact {
	for _, number := range phones {
		for _, v := range phone.Variants(number) {
			if c, ok := ix.byVariant[v]; ok {
				return c
			}
		}
	}
	return nil
}

// Len returns the number of indexed variants.
func (ix *Index) Len() int {
	return len(ix.byVariant)
}
