package core_domain

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Recipient is the local contact row an OutreachRecord points at.
// Several rows may describe the same person; RecipientIdentity collapses them.
type Recipient struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	LinkedInMemberID string    `json:"linkedin_member_id"`
	LinkedInURL      string    `json:"linkedin_url"`
	Email            string    `json:"email"`
}

// RecipientIdentity is the resolved, channel-addressable form of a recipient.
type RecipientIdentity struct {
	// ProviderID is what the transport is called with: member id or email address.
	ProviderID string
	// ProfileURL is the canonical https://www.linkedin.com/in/<slug> form, when known.
	ProfileURL string
	// Keys are the normalized matching keys used by dedup, block list and history.
	Keys []string
}

const (
	keyMember  = "li:"
	keyProfile = "li-url:"
	keyEmail   = "email:"
)

// IdentityError carries the verbatim skip reason for an unresolvable recipient.
type IdentityError struct {
	Reason string
}

func (e *IdentityError) Error() string { return e.Reason }

func (e *IdentityError) Is(target error) bool { return target == ErrInvalidIdentity }

var slugPattern = regexp.MustCompile(`^[\p{L}\p{N}_\-%.]+$`)

// CanonicalProfileSlug reduces any linkedin.com/in/ URL variant, or a bare public
// identifier, to a lowercase slug. It accepts missing or mixed protocols, www/mobile/
// country subdomains, trailing slashes, query strings, fragments, locale path suffixes
// and percent-encoding.
func CanonicalProfileSlug(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if !strings.Contains(s, "/") && !strings.Contains(s, ".") {
		slug := strings.ToLower(s)
		if unescaped, err := url.PathUnescape(slug); err == nil {
			slug = unescaped
		}
		return slug, slugPattern.MatchString(slug)
	}

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "//"):
		s = "https:" + s
	default:
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return "", false
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if strings.ToLower(segments[i]) != "in" {
			continue
		}
		slug := segments[i+1]
		if unescaped, err := url.PathUnescape(slug); err == nil {
			slug = unescaped
		}
		slug = strings.ToLower(strings.TrimSpace(slug))
		if slug == "" || !slugPattern.MatchString(slug) {
			return "", false
		}
		return slug, true
	}
	return "", false
}

// CanonicalProfileURL renders the slug in one fixed form.
func CanonicalProfileURL(slug string) string {
	return "https://www.linkedin.com/in/" + url.PathEscape(slug)
}

// NormalizeEmail lowercases and trims an address, dropping a mailto: prefix and display name.
func NormalizeEmail(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	if s == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	email := strings.ToLower(addr.Address)
	at := strings.LastIndex(email, "@")
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", false
	}
	return email, true
}

// ValidMemberID reports whether id can address the LinkedIn transport.
// Placeholders (temp_ prefix), URLs and username-only values are rejected.
func ValidMemberID(id, slug string) bool {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, " \t/") {
		return false
	}
	lower := strings.ToLower(id)
	if strings.HasPrefix(lower, "temp_") || strings.Contains(lower, "linkedin.com") {
		return false
	}
	if slug != "" && lower == slug {
		return false
	}
	return true
}

// Keys returns every matching key derivable from the row, sorted and unique.
func (r Recipient) Keys() []string {
	set := make(map[string]struct{}, 3)
	slug, hasSlug := CanonicalProfileSlug(r.LinkedInURL)
	if hasSlug {
		set[keyProfile+slug] = struct{}{}
	}
	if ValidMemberID(r.LinkedInMemberID, slug) {
		set[keyMember+strings.TrimSpace(r.LinkedInMemberID)] = struct{}{}
	}
	if email, ok := NormalizeEmail(r.Email); ok {
		set[keyEmail+email] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ResolveIdentity resolves r for channel ch. The returned error is an *IdentityError
// whose Reason is recorded verbatim as the skip reason.
func ResolveIdentity(r Recipient, ch Channel) (RecipientIdentity, error) {
	id := RecipientIdentity{Keys: r.Keys()}
	slug, hasSlug := CanonicalProfileSlug(r.LinkedInURL)
	if hasSlug {
		id.ProfileURL = CanonicalProfileURL(slug)
	}

	switch {
	case ch.IsLinkedIn():
		if !ValidMemberID(r.LinkedInMemberID, slug) {
			return id, &IdentityError{Reason: fmt.Sprintf("No valid linkedin_id: %s", displayValue(r.LinkedInMemberID))}
		}
		id.ProviderID = strings.TrimSpace(r.LinkedInMemberID)
	case ch == ChannelEmail:
		email, ok := NormalizeEmail(r.Email)
		if !ok {
			return id, &IdentityError{Reason: fmt.Sprintf("No valid email: %s", displayValue(r.Email))}
		}
		id.ProviderID = email
	default:
		return id, &IdentityError{Reason: fmt.Sprintf("Unsupported channel: %s", ch)}
	}

	if len(id.Keys) == 0 {
		return id, &IdentityError{Reason: "No matching keys for recipient"}
	}
	return id, nil
}

func displayValue(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "missing"
	}
	return v
}
