// Package address parses and normalizes SMTP envelope addresses: the paths
// that appear in MAIL FROM and RCPT TO, as distinct from any RFC 5322
// header address inside DATA (spec glossary, "Envelope address").
//
// Grounded on chasquid's internal/envelope and internal/normalize packages
// (domain IDNA folding) and gopistolet's smtp/mailaddress.go (local/domain
// splitting). RFC 6531 SMTPUTF8 acceptance is added on top using
// golang.org/x/net/idna for domains and golang.org/x/text/secure/precis
// (falling back to golang.org/x/text/unicode/norm) for local parts, all
// already present in the teacher's dependency graph but unused by the
// retrieved files, so wired here directly.
package address

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/secure/precis"
	"golang.org/x/text/unicode/norm"
)

// Address is an envelope address: the MAIL FROM or RCPT TO path.
//
// An Address is immutable once constructed by Parse.
type Address struct {
	raw       string
	localPart string
	domain    string
}

// ErrNullSender is returned by Parse for "<>", which is only valid for
// MAIL FROM.
var ErrNullSender = errors.New("address: null sender")

var (
	errMissingAngleBrackets = errors.New("address: missing angle brackets")
	errMissingAtSign        = errors.New("address: local part and domain must be separated by '@'")
	errEmptyLocalPart       = errors.New("address: empty local part")
	errEmptyDomain          = errors.New("address: empty domain")
	errMalformedDomain      = errors.New("address: malformed domain (IDNA conversion failed)")
)

// Parse parses the angle-bracket-wrapped path of a MAIL FROM or RCPT TO
// command, e.g. "<user@example.org>". ErrNullSender is returned for "<>"
// so callers can special-case it (valid for MAIL FROM, invalid for RCPT
// TO, per spec §4.1).
func Parse(path string) (Address, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "<") || !strings.HasSuffix(path, ">") {
		return Address{}, errMissingAngleBrackets
	}
	inner := path[1 : len(path)-1]
	if inner == "" {
		return Address{}, ErrNullSender
	}

	at := strings.LastIndexByte(inner, '@')
	if at < 0 {
		return Address{}, errMissingAtSign
	}
	local, domain := inner[:at], inner[at+1:]
	if local == "" {
		return Address{}, errEmptyLocalPart
	}
	if domain == "" {
		return Address{}, errEmptyDomain
	}

	domain, err := toUnicodeDomain(domain)
	if err != nil {
		return Address{}, errMalformedDomain
	}

	return Address{
		raw:       path,
		localPart: normalizeLocalPart(local),
		domain:    domain,
	}, nil
}

// normalizeLocalPart folds an RFC 6531 SMTPUTF8 local part to its
// canonical form using the PRECIS UsernameCaseMapped profile, the same
// profile class RFC 6531 points to for mailbox local parts. ASCII local
// parts are left untouched so existing ASCII mailboxes round-trip
// byte for byte.
func normalizeLocalPart(s string) string {
	if isASCII(s) {
		return s
	}
	if out, err := precis.UsernameCaseMapped.String(s); err == nil {
		return out
	}
	return norm.NFC.String(s)
}

// toUnicodeDomain folds an SMTPUTF8 (non-ASCII) domain to its Unicode
// form. An all-ASCII domain is validated and lowercased only; ASCII
// "xn--" labels are not decoded to Unicode.
func toUnicodeDomain(d string) (string, error) {
	if isASCII(d) {
		// Plain ASCII: validate, then lowercase; no other rewriting.
		if _, err := idna.Lookup.ToASCII(d); err != nil {
			return "", err
		}
		return strings.ToLower(d), nil
	}
	return idna.Lookup.ToUnicode(d)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// String returns the normalized "local@domain" form, without angle
// brackets.
func (a Address) String() string {
	if a.localPart == "" && a.domain == "" {
		return ""
	}
	return a.localPart + "@" + a.domain
}

// Raw returns the original angle-bracket-wrapped textual form.
func (a Address) Raw() string { return a.raw }

// LocalPart returns the portion of the address before '@'.
func (a Address) LocalPart() string { return a.localPart }

// Domain returns the portion of the address after '@'.
func (a Address) Domain() string { return a.domain }

// IsZero reports whether a is the zero Address (used to represent the
// null sender "<>").
func (a Address) IsZero() bool { return a.localPart == "" && a.domain == "" }
