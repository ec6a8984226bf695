package targets

import (
	"context"
	"strings"

	"verify-orchestrator/internal/jobs"

	"github.com/nyaruka/phonenumbers"
)

// Resolved is what the dispatcher needs to place a call or fall back.
// Phone and FallbackEmail are nil when nothing usable is on file.
type Resolved struct {
	Phone         *string
	FallbackEmail *string

	DisplayName      string
	ContactFirstName string
}

// Resolver looks up the best available phone number and fallback email for a
// job's target.
type Resolver struct {
	repo Repository

	// defaultRegion is the parse region for numbers stored without a country
	// prefix (e.g. "US").
	defaultRegion string
}

func NewResolver(repo Repository, defaultRegion string) *Resolver {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	return &Resolver{repo: repo, defaultRegion: defaultRegion}
}

// Resolve loads the job's business (and contact, if associated) and applies
// phone canonicalization plus the email waterfall:
// contact decision-maker -> business manager -> business owner -> generic.
// The waterfall prefers the most senior/validated address because the fallback
// path only needs *an* address for the messaging sequence.
func (r *Resolver) Resolve(ctx context.Context, job jobs.VerificationJob) (Resolved, error) {
	if job.BusinessID == "" {
		return Resolved{}, ErrInvalidArgument
	}

	biz, ok, err := r.repo.GetBusiness(ctx, job.BusinessID)
	if err != nil {
		return Resolved{}, err
	}
	if !ok {
		return Resolved{}, ErrNotFound
	}

	var contact Contact
	var hasContact bool
	if job.ContactID != "" {
		contact, hasContact, err = r.repo.GetContact(ctx, job.ContactID)
		if err != nil {
			return Resolved{}, err
		}
	}

	out := Resolved{
		DisplayName: firstNonEmpty(job.Payload.BusinessName, biz.Name),
	}
	if hasContact {
		out.ContactFirstName = firstNonEmpty(job.Payload.ContactFirstName, contact.FirstName)
	} else {
		out.ContactFirstName = job.Payload.ContactFirstName
	}

	if phone := r.normalizePhone(biz.Phone); phone != "" {
		out.Phone = &phone
	}

	emails := []string{biz.ManagerEmail, biz.OwnerEmail, biz.Email}
	if hasContact {
		emails = append([]string{contact.Email}, emails...)
	}
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e != "" {
			out.FallbackEmail = &e
			break
		}
	}

	return out, nil
}

// normalizePhone returns the E.164 form, or "" when the raw value is absent,
// unparseable, or not a valid number.
func (r *Resolver) normalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, r.defaultRegion)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
