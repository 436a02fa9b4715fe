package core

import "testing"

func TestVenditHeaderSigner_AttachesAuthHeaders(t *testing.T) {
	req := TransportRequest{Method: "GET", URL: "https://api.staging.vendit.online/Api/GetProductsFromId/0"}
	token := Token{Value: "tok_1"}
	creds := Credentials{APIKey: "key_1", Username: "svc", Password: "pw"}

	if err := (VenditHeaderSigner{}).Sign(&req, token, creds); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	if req.Headers[HeaderToken] != "tok_1" {
		t.Fatalf("expected token header, got %#v", req.Headers)
	}
	if req.Headers[HeaderAPIKey] != "key_1" {
		t.Fatalf("expected api key header, got %#v", req.Headers)
	}
	if req.Headers["Accept"] != "application/json" {
		t.Fatalf("expected default accept header, got %#v", req.Headers)
	}
}

func TestVenditHeaderSigner_KeepsExplicitAccept(t *testing.T) {
	req := TransportRequest{Headers: map[string]string{"Accept": "application/xml"}}
	if err := (VenditHeaderSigner{}).Sign(&req, Token{Value: "tok_1"}, Credentials{APIKey: "key_1"}); err != nil {
		t.Fatalf("sign request: %v", err)
	}
	if req.Headers["Accept"] != "application/xml" {
		t.Fatalf("expected caller accept header to survive, got %q", req.Headers["Accept"])
	}
}

func TestVenditHeaderSigner_RequiredInputs(t *testing.T) {
	if err := (VenditHeaderSigner{}).Sign(nil, Token{Value: "tok_1"}, Credentials{APIKey: "key_1"}); err == nil {
		t.Fatalf("expected nil request to fail")
	}
	req := TransportRequest{}
	if err := (VenditHeaderSigner{}).Sign(&req, Token{}, Credentials{APIKey: "key_1"}); err == nil {
		t.Fatalf("expected empty token to fail")
	}
	if err := (VenditHeaderSigner{}).Sign(&req, Token{Value: "tok_1"}, Credentials{}); err == nil {
		t.Fatalf("expected empty api key to fail")
	}
}
