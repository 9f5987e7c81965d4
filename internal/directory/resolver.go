package directory

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/phone"
)

// Resolver reasons.
const (
	ReasonInvalidNumber = "invalid number"
	ReasonNotFound      = "not found under any variant"
)

// Attempt records the check made for one variant.
type Attempt struct {
	Variant string
	Check   Check
}

// Resolution is the outcome of resolving a raw phone.
type Resolution struct {
	Verified bool
	Exists   bool
	// Invalid is set when the raw phone has no digits.
	Invalid bool
	// PhoneChecked is the matching variant, or the canonical form when
	// nothing matched.
	PhoneChecked string
	DirectoryID  string
	Reason       string
	Attempts     []Attempt
}

// Resolver searches the directory across the variants of a phone.
type Resolver struct {
	checker Checker
}

// NewResolver creates a Resolver backed by checker.
func NewResolver(checker Checker) *Resolver {
	return &Resolver{checker: checker}
}

// Resolve checks the variants of raw in order and returns the first match.
// The canonical form wins when several variants could match.
func (r *Resolver) Resolve(ctx context.Context, raw, session string) Resolution {
	variants := phone.Variants(raw)
	if len(variants) == 0 {
		return Resolution{Invalid: true, Reason: ReasonInvalidNumber}
	}

	res := Resolution{Attempts: make([]Attempt, 0, len(variants))}
	for _, variant := range variants {
		if ctx.Err() != nil {
			break
		}
		check := r.checker.Check(ctx, variant, session)
		res.Attempts = append(res.Attempts, Attempt{Variant: variant, Check: check})
		if check.Found() {
			res.Verified = true
			res.Exists = true
			res.PhoneChecked = variant
			res.DirectoryID = check.DirectoryID
			return res
		}
	}

	res.Verified = true
	res.PhoneChecked = variants[0]
	res.Reason = ReasonNotFound
	zap.L().Debug("directory: number not found",
		zap.String("phone", variants[0]),
		zap.String("region", phone.Region(variants[0])),
		zap.Int("unverified_attempts", res.Unverified()),
	)
	return res
}

// Unverified counts attempts the directory did not answer.
func (r Resolution) Unverified() int {
	n := 0
	for _, a := range r.Attempts {
		if !a.Check.Verified {
			n++
		}
	}
	return n
}
