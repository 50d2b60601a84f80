// Package sources holds the concrete connector implementations, one per
// regulatory agency feed.
package sources

import (
	"fmt"

	"github.com/Ramsey-B/yarrow/pkg/connectors"
	"github.com/Ramsey-B/yarrow/pkg/httpclient"
)

// Config holds per-source overrides. Base URLs default to the public
// endpoints and are overridable for tests and mirrors.
type Config struct {
	CPSCBaseURL         string
	SafetyGateBaseURL   string
	HealthCanadaBaseURL string
	OPSSBaseURL         string
	ACCCBaseURL         string
	KCCBaseURL          string
}

// RegisterAll wires every known connector into the registry
func RegisterAll(registry *connectors.Registry, client *httpclient.Client, cfg Config) error {
	all := []connectors.Connector{
		NewCPSC(client, cfg.CPSCBaseURL),
		NewSafetyGate(client, cfg.SafetyGateBaseURL),
		NewHealthCanada(client, cfg.HealthCanadaBaseURL),
		NewOPSS(client, cfg.OPSSBaseURL),
		NewACCC(client, cfg.ACCCBaseURL),
		NewKCC(client, cfg.KCCBaseURL),
	}

	for _, c := range all {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("registering connector: %w", err)
		}
	}
	return nil
}

func stringField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
