// Package enrich merges directory profile data into prepared contacts.
package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/crm-import/internal/model"
	"github.com/sells-group/crm-import/internal/phone"
	"github.com/sells-group/crm-import/pkg/waha"
)

// Request identifies the confirmed directory entry to enrich from.
type Request struct {
	ChatID    string
	Session   string
	CompanyID string
	// PushName is the display name to fall back to.
	PushName string
}

// Source says where the enrichment data came from.
type Source string

const (
	SourceNone      Source = "none"
	SourceProfile   Source = "profile"
	SourcePhotoOnly Source = "photo_only"
)

// Outcome describes what an Enrich call achieved. Failures are reported as
// reasons only.
type Outcome struct {
	Source  Source
	Reasons []string
}

// Enricher fills avatar, nickname and alternate ids of confirmed contacts.
type Enricher struct {
	syncer ProfileSyncer
	photos waha.Client
}

// NewEnricher creates an Enricher. Either collaborator may be nil.
func NewEnricher(syncer ProfileSyncer, photos waha.Client) *Enricher {
	return &Enricher{syncer: syncer, photos: photos}
}

// Enrich merges the profile of req.ChatID into c. The profile phone replaces
// the contact phone. When the profile sync fails or has no avatar, only the
// profile picture is fetched.
func (e *Enricher) Enrich(ctx context.Context, c *model.PreparedContact, req Request) Outcome {
	out := Outcome{Source: SourceNone}
	if e == nil || req.ChatID == "" {
		return out
	}

	if e.syncer != nil {
		res, err := e.syncer.SyncProfile(ctx, ProfileRequest{
			ChatID:      req.ChatID,
			SessionName: req.Session,
			CompanyID:   req.CompanyID,
			PushName:    req.PushName,
		})
		switch {
		case err != nil:
			out.Reasons = append(out.Reasons, "profile sync: "+err.Error())
		case !res.Success || res.Contact == nil:
			out.Reasons = append(out.Reasons, "profile sync: unsuccessful response")
		default:
			apply(c, res.Contact)
			out.Source = SourceProfile
		}
	}

	if c.AvatarURL != "" || e.photos == nil {
		return out
	}

	pic, err := e.photos.ProfilePicture(ctx, req.ChatID, req.Session)
	switch {
	case err != nil:
		out.Reasons = append(out.Reasons, "profile picture: "+err.Error())
	case pic.ProfilePictureURL == "":
		out.Reasons = append(out.Reasons, "profile picture: empty")
	default:
		c.AvatarURL = pic.ProfilePictureURL
		if out.Source == SourceNone {
			out.Source = SourcePhotoOnly
		}
	}

	if out.Source == SourceNone {
		zap.L().Debug("enrich: contact left unenriched",
			zap.String("chat_id", req.ChatID),
			zap.Strings("reasons", out.Reasons),
		)
	}
	return out
}

func apply(c *model.PreparedContact, p *ProfileContact) {
	if digits, ok := phone.Normalize(p.Phone); ok {
		c.SetPrimaryPhone(digits)
	}
	if lid := strings.TrimSpace(p.LID); lid != "" && !c.HasPhone(lid) {
		c.Phones = append(c.Phones, model.Phone{Number: lid, Role: model.PhoneRoleLID})
	}
	if p.AvatarURL != "" {
		c.AvatarURL = p.AvatarURL
	}
	if p.Nickname != "" {
		c.Nickname = p.Nickname
	}
}
