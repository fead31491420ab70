// Package legalid derives ELI/ECLI-style legal identifiers, residency zones,
// and content digests. Derivation is best-effort and table-driven: unmatched
// inputs yield ("", false), never an error.
package legalid

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// ContentHash returns the hex-encoded SHA-256 digest of a payload. It is the
// dedup key for change detection.
func ContentHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

var ecliPattern = regexp.MustCompile(`ECLI:[A-Z]{2}:[A-Z0-9]+:\d{4}:[A-Za-z0-9.]+`)

// eliHosts are legal-database hostnames known to embed an ELI in the URL path.
// Matching is by exact host or subdomain suffix.
var eliHosts = []string{
	"legifrance.gouv.fr",
	"eur-lex.europa.eu",
	"fedlex.admin.ch",
	"legislation.gov.uk",
	"ejustice.just.fgov.be",
	"gazzettaufficiale.it",
}

// ecliHosts are court-database hostnames whose URLs carry an ECLI as a path
// segment or query parameter.
var ecliHosts = []string{
	"curia.europa.eu",
	"hudoc.echr.coe.int",
	"juricaf.org",
	"rechtspraak.nl",
	"courdecassation.fr",
}

// DeriveELI extracts a European Legislation Identifier from a canonical URL.
// It recognizes an "/eli/" path segment on known legal-database hosts (or any
// host, since the segment itself is the ELI convention).
func DeriveELI(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}

	path := strings.Trim(u.Path, "/")
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if strings.EqualFold(seg, "eli") && i < len(segments)-1 {
			return "eli/" + strings.Join(segments[i+1:], "/"), true
		}
	}

	// EUR-Lex encodes the instrument in a CELEX query parameter.
	if hostMatches(u.Host, "eur-lex.europa.eu") {
		if celex := u.Query().Get("uri"); strings.HasPrefix(celex, "CELEX:") {
			return celex, true
		}
	}

	return "", false
}

// DeriveECLI extracts a European Case-Law Identifier, preferring URL shapes
// on known court hosts and falling back to a regex scan of extracted text.
func DeriveECLI(rawURL, text string) (string, bool) {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		for _, h := range ecliHosts {
			if !hostMatches(u.Host, h) {
				continue
			}
			if ecli := u.Query().Get("ecli"); ecli != "" && ecliPattern.MatchString(ecli) {
				return ecli, true
			}
			if m := ecliPattern.FindString(u.Path); m != "" {
				return m, true
			}
		}
	}

	if m := ecliPattern.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// KnownELIHost reports whether a host belongs to a known ELI-bearing legal
// database.
func KnownELIHost(host string) bool {
	for _, h := range eliHosts {
		if hostMatches(host, h) {
			return true
		}
	}
	return false
}

func hostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Residency zones used for storage and data-locality decisions.
const (
	ZoneEU     = "eu"
	ZoneCanada = "canada"
	ZoneOHADA  = "ohada"
	ZoneGlobal = "global"
)

var residencyByJurisdiction = map[string]string{
	"eu": ZoneEU, "fr": ZoneEU, "de": ZoneEU, "be": ZoneEU, "it": ZoneEU,
	"es": ZoneEU, "nl": ZoneEU, "lu": ZoneEU, "at": ZoneEU, "pt": ZoneEU,
	"ie": ZoneEU, "pl": ZoneEU,
	"ca": ZoneCanada, "ca-qc": ZoneCanada, "ca-on": ZoneCanada,
	"sn": ZoneOHADA, "ci": ZoneOHADA, "cm": ZoneOHADA, "bj": ZoneOHADA,
	"bf": ZoneOHADA, "tg": ZoneOHADA, "ohada": ZoneOHADA,
}

// ResolveResidency maps an explicit override, else a jurisdiction code, to a
// compliance zone. Unknown jurisdictions land in the global zone.
func ResolveResidency(override, jurisdiction string) string {
	if override != "" {
		return override
	}
	if zone, ok := residencyByJurisdiction[strings.ToLower(jurisdiction)]; ok {
		return zone
	}
	return ZoneGlobal
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a title into a storage-path-safe token, capped at 80 runes.
func Slug(title string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "untitled"
	}
	if len(s) > 80 {
		s = strings.Trim(s[:80], "-")
	}
	return s
}
