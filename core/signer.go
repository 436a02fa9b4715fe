package core

import (
	"fmt"
	"strings"
)

// VenditHeaderSigner attaches the Vendit authentication headers to an
// outbound request: the bearer token under Token and the account key under
// ApiKey.
type VenditHeaderSigner struct{}

func (VenditHeaderSigner) Sign(req *TransportRequest, token Token, credentials Credentials) error {
	if req == nil {
		return fmt.Errorf("core: transport request is required")
	}
	value := strings.TrimSpace(token.Value)
	if value == "" {
		return fmt.Errorf("core: token value is required for signing")
	}
	apiKey := strings.TrimSpace(credentials.APIKey)
	if apiKey == "" {
		return fmt.Errorf("core: api key is required for signing")
	}

	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers[HeaderToken] = value
	req.Headers[HeaderAPIKey] = apiKey
	if _, ok := req.Headers["Accept"]; !ok {
		req.Headers["Accept"] = "application/json"
	}
	return nil
}

var _ RequestSigner = VenditHeaderSigner{}
