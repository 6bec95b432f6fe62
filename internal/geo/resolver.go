// Package geo maps caller addresses to coarse locations. The MaxMind database
// is optional: without it every lookup answers Unknown.
package geo

import (
	"log/slog"
	"net"
	"strings"

	"github.com/geocoder89/centinel/internal/observability"
	"github.com/oschwald/geoip2-golang"
)

// Unknown is reported when the country cannot be determined.
const Unknown = "--"

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver is safe for concurrent lookups; the reader is read-only once opened.
type Resolver struct {
	reader countryReader
	prom   *observability.Prom
}

// Open loads the country database at path. Any failure yields a disabled
// resolver instead of an error so the server can start without it.
func Open(path string, log *slog.Logger, prom *observability.Prom) *Resolver {
	if path == "" {
		log.Warn("geolocation disabled: no database configured")
		return &Resolver{prom: prom}
	}

	reader, err := geoip2.Open(path)

	if err != nil {
		log.Warn("geolocation disabled: database is missing or corrupt, download a new copy",
			"path", path, "err", err)
		return &Resolver{prom: prom}
	}

	return &Resolver{reader: reader, prom: prom}
}

func newResolver(reader countryReader) *Resolver {
	return &Resolver{reader: reader}
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.reader != nil
}

// CountryFor returns the ISO 3166-1 alpha-2 code for ip, or Unknown.
func (r *Resolver) CountryFor(ip string) string {
	if r == nil {
		return Unknown
	}

	if r.reader == nil {
		r.prom.ObserveGeo("disabled")
		return Unknown
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		r.prom.ObserveGeo("unknown")
		return Unknown
	}

	record, err := r.reader.Country(parsed)
	if err != nil || record == nil || record.Country.IsoCode == "" {
		r.prom.ObserveGeo("unknown")
		return Unknown
	}

	r.prom.ObserveGeo("found")
	return record.Country.IsoCode
}

func (r *Resolver) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.reader.Close()
}
