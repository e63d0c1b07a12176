// Package source turns catalog instances and static host files into records.
package source

import "strings"

// Reserved tag keys.
const (
	TagDNS   = "dns"
	TagVHost = "vhost"
)

// Tags is a parsed tag list. Every key maps to its values in first-seen order;
// a tag seen once has a single value.
type Tags map[string][]string

// ParseTags parses "key=value" strings. Tags without "=" are ignored.
func ParseTags(raw []string) Tags {
	tags := Tags{}
	for _, tag := range raw {
		k, v, ok := strings.Cut(tag, "=")
		if !ok {
			continue
		}
		tags[k] = append(tags[k], v)
	}
	return tags
}

// Has reports whether key was present at least once.
func (t Tags) Has(key string) bool {
	return len(t[key]) > 0
}

// Get returns the first value of key, or "".
func (t Tags) Get(key string) string {
	if vs := t[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
