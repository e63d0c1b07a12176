package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
)

// Entry is one line of a static host file.
type Entry struct {
	Value string
	FQDN  string
	Host  string
}

// Domain returns the fqdn without its host label.
func (e Entry) Domain() string {
	if e.Host != "" && strings.HasPrefix(e.FQDN, e.Host+".") {
		return e.FQDN[len(e.Host)+1:]
	}
	_, domain := dns.SplitHostname(e.FQDN)
	return domain
}

// ReadHostFile reads a static host file. Files ending in ".conf" use the alias
// format "cname=<fqdn>,<target>"; anything else uses "<ip> <fqdn> <host>".
// A missing file yields no entries.
func ReadHostFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening host file: %w", err)
	}
	defer f.Close()

	entries, err := ParseHostFile(f, strings.HasSuffix(path, ".conf"))
	if err != nil {
		return nil, fmt.Errorf("reading host file %s: %w", path, err)
	}
	return entries, nil
}

// ParseHostFile parses host file content. Comments and malformed lines are skipped.
func ParseHostFile(r io.Reader, alias bool) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var (
			e  Entry
			ok bool
		)
		if alias {
			e, ok = parseAliasLine(line)
		} else {
			e, ok = parseHostsLine(line)
		}
		if ok {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

func parseHostsLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Entry{}, false
	}
	e := Entry{Value: dns.Canonical(fields[0]), FQDN: dns.Canonical(fields[1]), Host: strings.ToLower(fields[2])}
	if !dns.IsDomainName(e.FQDN) {
		return Entry{}, false
	}
	return e, true
}

func parseAliasLine(line string) (Entry, bool) {
	rest, ok := strings.CutPrefix(line, "cname=")
	if !ok {
		return Entry{}, false
	}
	parts := strings.Split(rest, ",")
	if len(parts) != 2 {
		return Entry{}, false
	}
	fqdn, target := dns.Canonical(strings.TrimSpace(parts[0])), dns.Canonical(strings.TrimSpace(parts[1]))
	if !dns.IsDomainName(fqdn) || target == "" {
		return Entry{}, false
	}
	host, _ := dns.SplitHostname(fqdn)
	return Entry{Value: target, FQDN: fqdn, Host: host}, true
}

// Resolver picks the zone an entry belongs to given the registered zones.
type Resolver func(domain string, zones []string) string

// MergeHostFiles reads every path and adds its entries to dst under the zone
// chosen by resolve against the zones of registered. The zones are re-read for
// every entry, so when registered is dst a zone created by one line is the
// parent of later lines. Missing files are skipped; unreadable ones are
// returned as errors after the others merged.
func MergeHostFiles(dst record.Zones, paths []string, registered record.Zones, resolve Resolver) error {
	var errs []error
	for _, path := range paths {
		entries, err := ReadHostFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			dst.Add(resolve(e.Domain(), registered.Names()), e.Value, e.FQDN)
		}
	}
	return errors.Join(errs...)
}
