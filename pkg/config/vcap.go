package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// vcapService is one service binding in VCAP_SERVICES.
type vcapService struct {
	Name        string         `json:"name"`
	Credentials map[string]any `json:"credentials"`
}

// applyVCAPServices fills service locations from a Cloud Foundry
// VCAP_SERVICES document. Bindings that are absent leave the current
// settings untouched.
func (c *Config) applyVCAPServices(data []byte) error {
	var services map[string][]vcapService
	if err := json.Unmarshal(data, &services); err != nil {
		return err
	}

	if es := services["elasticsearch13"]; len(es) > 0 {
		host := credential(es[0], "hostname")
		ports, _ := es[0].Credentials["ports"].(map[string]any)
		port, _ := ports["9200/tcp"].(string)
		if host != "" && port != "" {
			c.Elastic.Addresses = []string{fmt.Sprintf("http://%s:%s", host, port)}
		}
	}

	userProvided := services["user-provided"]
	find := func(name string) (vcapService, bool) {
		for _, s := range userProvided {
			if s.Name == name {
				return s, true
			}
		}
		return vcapService{}, false
	}

	if sso, ok := find("sso"); ok {
		if key := credential(sso, "tokenKey"); key != "" {
			c.Services.TokenKeyURL = key
		}
	}

	var downloader vcapService
	var ok bool
	if bound := services["downloader"]; len(bound) > 0 {
		downloader, ok = bound[0], true
	} else {
		downloader, ok = find("downloader")
	}
	if ok {
		if url := credential(downloader, "url"); url != "" {
			c.Services.DownloaderURL = url
		}
	}

	if export, ok := find("datacatalogexport"); ok {
		if host := credential(export, "host"); host != "" {
			c.Services.PublisherURL = host
		}
	}
	if um, ok := find("user-management"); ok {
		if host := credential(um, "host"); host != "" {
			c.Services.UserManagementURL = strings.TrimRight(host, "/") + "/rest/orgs/permissions"
		}
	}
	if nats, ok := find("nats"); ok {
		if url := credential(nats, "url"); url != "" {
			c.NATS.URL = url
		}
		if subject := credential(nats, "subject"); subject != "" {
			c.NATS.Subject = subject
		}
	}
	return nil
}

func credential(s vcapService, key string) string {
	v, _ := s.Credentials[key].(string)
	return v
}
