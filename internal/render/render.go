// Package render projects records into dnsmasq artifacts: an addn-hosts file
// for address records and a conf file of cname directives.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/record"
)

// Output is the rendered content of both artifacts.
type Output struct {
	Hosts   string
	Aliases string
}

// Render builds the artifacts for every record of zones, ordered by fqdn then value.
func Render(zones record.Zones) Output {
	var hosts, aliases strings.Builder
	for _, r := range zones.All() {
		if dns.IsIPv4(r.Value) {
			host, _ := dns.SplitHostname(r.FQDN)
			fmt.Fprintf(&hosts, "%s %s %s\n", r.Value, r.FQDN, host)
			continue
		}
		fmt.Fprintf(&aliases, "cname=%s,%s\n", r.FQDN, r.Value)
	}
	return Output{Hosts: hosts.String(), Aliases: aliases.String()}
}

// Paths returns the hosts and conf file paths for prefix.
func Paths(prefix string) (hosts, conf string) {
	return prefix + ".hosts", prefix + ".conf"
}

// Files returns the exact content of <prefix>.hosts and <prefix>.conf. The conf
// file references the hosts file when both are non-empty.
func Files(prefix string, out Output) (hosts, conf string) {
	hostsPath, _ := Paths(prefix)
	conf = out.Aliases
	if out.Hosts != "" && out.Aliases != "" {
		conf = "addn-hosts=" + hostsPath + "\n" + conf
	}
	return out.Hosts, conf
}

// Write stores both artifacts under prefix and returns the paths it rewrote.
// A file whose content already matches is left untouched.
func Write(prefix string, out Output) ([]string, error) {
	hostsPath, confPath := Paths(prefix)
	hosts, conf := Files(prefix, out)

	var written []string
	for _, f := range []struct{ path, content string }{
		{hostsPath, hosts},
		{confPath, conf},
	} {
		changed, err := writeIfChanged(f.path, []byte(f.content))
		if err != nil {
			return written, err
		}
		if changed {
			written = append(written, f.path)
		}
	}
	return written, nil
}

func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && bytes.Equal(existing, content):
		return false, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return false, fmt.Errorf("render: read %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("render: create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return false, fmt.Errorf("render: write %s: %w", path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return false, fmt.Errorf("render: chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("render: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("render: rename %s: %w", path, err)
	}
	return true, nil
}
