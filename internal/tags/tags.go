// Package tags resolves requested tag names to company tag ids, creating
// missing tags once per import.
package tags

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/store"
)

// Key returns the case and whitespace insensitive key of a tag name.
func Key(name string) string {
	return model.TagKey(name)
}

// ParseNames splits comma or semicolon delimited values into trimmed tag
// names. Empty names are dropped.
func ParseNames(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.FieldsFunc(v, isDelimiter) {
			if name := strings.TrimSpace(part); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func isDelimiter(r rune) bool {
	return r == ',' || r == ';'
}

// Request carries every tag name referenced by one import.
type Request struct {
	Global     []string
	Individual []string
	FreeText   []string
}

// Map resolves tag names to ids by Key.
type Map map[string]string

// ID returns the id for name.
func (m Map) ID(name string) (string, bool) {
	id, ok := m[Key(name)]
	return id, ok
}

// IDs returns the distinct ids of names, in order, skipping unknown names.
func (m Map) IDs(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		id, ok := m.ID(n)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Resolver maps requested names to tag ids.
type Resolver struct {
	store store.TagStore
}

// NewResolver creates a Resolver backed by s.
func NewResolver(s store.TagStore) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the id of every requested name, creating the missing tags
// in one call. Rows returned by the store win, so concurrent imports that
// create the same name converge on one tag.
func (r *Resolver) Resolve(ctx context.Context, companyID string, req Request) (Map, error) {
	var requested []string
	seen := make(map[string]struct{})
	for _, group := range [][]string{req.Global, req.Individual, req.FreeText} {
		for _, name := range group {
			name = strings.TrimSpace(name)
			k := Key(name)
			if k == "" {
				continue
			}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			requested = append(requested, name)
		}
	}

	m := make(Map, len(requested))
	if len(requested) == 0 {
		return m, nil
	}

	existing, err := r.store.ListTags(ctx, companyID)
	if err != nil {
		return nil, eris.Wrap(err, "tags: list tags")
	}
	for _, t := range existing {
		k := Key(t.Name)
		if _, ok := m[k]; !ok {
			m[k] = t.ID
		}
	}

	var missing []string
	for _, name := range requested {
		if _, ok := m[Key(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return m, nil
	}

	created, err := r.store.CreateTags(ctx, companyID, missing, model.TagTypeImport)
	if err != nil {
		return nil, eris.Wrap(err, "tags: create tags")
	}
	for _, t := range created {
		m[Key(t.Name)] = t.ID
	}

	zap.L().Info("tags: resolved import tags",
		zap.String("company_id", companyID),
		zap.Int("requested", len(requested)),
		zap.Int("created", len(missing)),
	)
	return m, nil
}
