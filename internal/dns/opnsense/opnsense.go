package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

func init() {
	dns.Register("opnsense", func(log logr.Logger, settings map[string]string) (dns.Provider, error) {
		return New(log, settings)
	})
}

const defaultDescription = "managed by yk-dns-sync"

// Provider implements dns.Provider for OPNsense Unbound DNS host overrides.
// Unbound has a single credential and no zone objects, so every credential maps
// to the same session and zone ids are the zone names themselves.
type Provider struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	description string
	client      *http.Client
	log         logr.Logger
}

// New creates an OPNsense DNS provider from the given settings map.
// Required settings: base_url, api_key, api_secret.
// Optional settings: description, skip_tls_verify (default false).
func New(log logr.Logger, settings map[string]string) (*Provider, error) {
	baseURL := settings["base_url"]
	if baseURL == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'base_url'")
	}
	apiKey := settings["api_key"]
	if apiKey == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_key'")
	}
	apiSecret := settings["api_secret"]
	if apiSecret == "" {
		return nil, fmt.Errorf("opnsense: missing required setting 'api_secret'")
	}
	description := settings["description"]
	if description == "" {
		description = defaultDescription
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := settings["skip_tls_verify"]; v == "true" {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Provider{
		baseURL:     baseURL,
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		description: description,
		client:      &http.Client{Transport: transport},
		log:         log,
	}, nil
}

// Session returns the provider itself; OPNsense has a single API credential.
func (p *Provider) Session(_ context.Context, credential string) (dns.Session, error) {
	if credential != "" {
		p.log.V(1).Info("ignoring credential handle, opnsense uses its api key", "credential", credential)
	}
	return p, nil
}

// doRequest builds and executes an HTTP request against the OPNsense API.
func (p *Provider) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	url := strings.TrimRight(p.baseURL, "/") + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opnsense: build request: %w", err)
	}

	req.SetBasicAuth(p.apiKey, p.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opnsense: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// postResult posts body to path and checks the "result" field of the reply.
func (p *Provider) postResult(ctx context.Context, path string, body interface{}, want string) error {
	resp, err := p.doRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opnsense: %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode %s response: %w", path, err)
	}
	if result.Result != want {
		return fmt.Errorf("opnsense: %s unexpected result: %s", path, result.Result)
	}
	return nil
}

// reconfigure tells OPNsense to apply DNS changes.
func (p *Provider) reconfigure(ctx context.Context) error {
	resp, err := p.doRequest(ctx, http.MethodPost, "unbound/service/reconfigure", struct{}{})
	if err != nil {
		return fmt.Errorf("opnsense: reconfigure: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("opnsense: reconfigure returned status %d", resp.StatusCode)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("opnsense: decode reconfigure response: %w", err)
	}
	p.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

// searchResponse is the shape returned by searchHostOverride.
type searchResponse struct {
	Rows []hostRow `json:"rows"`
}

// hostRow represents a single host override row from the search response.
type hostRow struct {
	UUID     string `json:"uuid"`
	Enabled  string `json:"enabled"`
	Hostname string `json:"hostname"`
	Domain   string `json:"domain"`
	RR       string `json:"rr"`
	Server   string `json:"server"`
}

func (r hostRow) fqdn() string {
	if r.Hostname == "" {
		return dns.Canonical(r.Domain)
	}
	return dns.Canonical(r.Hostname + "." + r.Domain)
}

func (p *Provider) searchOverrides(ctx context.Context) ([]hostRow, error) {
	resp, err := p.doRequest(ctx, http.MethodGet, "unbound/settings/searchHostOverride", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opnsense: searchHostOverride returned status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("opnsense: decode search response: %w", err)
	}
	return sr.Rows, nil
}

// buildHostBody creates the JSON body for addHostOverride calls.
func (p *Provider) buildHostBody(fqdn, recordType, value string) map[string]interface{} {
	host, domain := dns.SplitHostname(fqdn)
	return map[string]interface{}{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    host,
			"domain":      domain,
			"rr":          recordType,
			"server":      value,
			"description": p.description,
			"mxprio":      "",
			"mx":          "",
		},
	}
}

// LookupZone returns the zone name; Unbound overrides are not grouped in zones.
func (p *Provider) LookupZone(_ context.Context, zone string) (string, error) {
	return zone, nil
}

// ListRecordSets groups the enabled host overrides under zoneID by name and type.
func (p *Provider) ListRecordSets(ctx context.Context, zoneID string) ([]dns.RecordSet, error) {
	rows, err := p.searchOverrides(ctx)
	if err != nil {
		return nil, err
	}

	index := map[string]*dns.RecordSet{}
	var keys []string
	for _, row := range rows {
		if row.Enabled == "0" {
			continue
		}
		name := row.fqdn()
		if !dns.IsSubDomain(zoneID, name) {
			continue
		}
		key := name + "/" + strings.ToUpper(row.RR)
		rs, ok := index[key]
		if !ok {
			rs = &dns.RecordSet{Name: name, Type: strings.ToUpper(row.RR)}
			index[key] = rs
			keys = append(keys, key)
		}
		rs.Values = append(rs.Values, row.Server)
	}

	sort.Strings(keys)
	out := make([]dns.RecordSet, 0, len(keys))
	for _, k := range keys {
		out = append(out, *index[k])
	}
	return out, nil
}

// SubmitChange maps one change onto host override calls and reconfigures Unbound.
func (p *Provider) SubmitChange(ctx context.Context, zoneID string, change dns.Change) error {
	p.log.Info("submitting change", "zone", zoneID, "action", change.Action, "name", change.Name, "type", change.Type, "values", change.Values)

	switch change.Action {
	case dns.ActionCreate:
		if err := p.addOverrides(ctx, change); err != nil {
			return err
		}
	case dns.ActionUpsert:
		if _, err := p.deleteOverrides(ctx, change.Name, nil); err != nil {
			return err
		}
		if err := p.addOverrides(ctx, change); err != nil {
			return err
		}
	case dns.ActionDelete:
		n, err := p.deleteOverrides(ctx, change.Name, change.Values)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("opnsense: no existing override found for %s/%s", change.Name, change.Type)
		}
	default:
		return fmt.Errorf("opnsense: unsupported change action %q", change.Action)
	}
	return p.reconfigure(ctx)
}

func (p *Provider) addOverrides(ctx context.Context, change dns.Change) error {
	for _, value := range change.Values {
		body := p.buildHostBody(change.Name, change.Type, value)
		if err := p.postResult(ctx, "unbound/settings/addHostOverride", body, "saved"); err != nil {
			return err
		}
		p.log.V(1).Info("override created", "name", change.Name, "value", value)
	}
	return nil
}

// deleteOverrides removes the overrides of name whose server is in values, or
// all of them when values is nil. It returns the number removed.
func (p *Provider) deleteOverrides(ctx context.Context, name string, values []string) (int, error) {
	rows, err := p.searchOverrides(ctx)
	if err != nil {
		return 0, err
	}

	keep := func(server string) bool {
		if values == nil {
			return false
		}
		for _, v := range values {
			if strings.EqualFold(v, server) {
				return false
			}
		}
		return true
	}

	n := 0
	for _, row := range rows {
		if row.fqdn() != dns.Canonical(name) || keep(row.Server) {
			continue
		}
		path := fmt.Sprintf("unbound/settings/delHostOverride/%s", row.UUID)
		if err := p.postResult(ctx, path, struct{}{}, "deleted"); err != nil {
			return n, err
		}
		p.log.V(1).Info("override deleted", "uuid", row.UUID, "name", name)
		n++
	}
	return n, nil
}
