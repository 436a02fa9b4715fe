package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	TokenPayloadFormatLegacySecrets = "legacy_secrets"
	TokenPayloadFormatJSONV1        = "token_json"
	TokenPayloadVersionV1           = 1
)

// TokenCodec serializes tokens for stores that persist opaque payloads.
type TokenCodec interface {
	Format() string
	Version() int
	Encode(token Token) ([]byte, error)
	Decode(payload []byte) (Token, error)
}

type JSONTokenCodec struct{}

func (JSONTokenCodec) Format() string {
	return TokenPayloadFormatJSONV1
}

func (JSONTokenCodec) Version() int {
	return TokenPayloadVersionV1
}

type jsonTokenPayload struct {
	Value     string         `json:"value"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (JSONTokenCodec) Encode(token Token) ([]byte, error) {
	payload := jsonTokenPayload{
		Value:    strings.TrimSpace(token.Value),
		Metadata: copyAnyMap(token.Metadata),
	}
	if !token.ExpiresAt.IsZero() {
		expires := token.ExpiresAt.UTC()
		payload.ExpiresAt = &expires
	}
	if !token.IssuedAt.IsZero() {
		issued := token.IssuedAt.UTC()
		payload.IssuedAt = &issued
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode token payload: %w", err)
	}
	return encoded, nil
}

func (JSONTokenCodec) Decode(payload []byte) (Token, error) {
	if len(payload) == 0 {
		return Token{}, fmt.Errorf("core: token payload is empty")
	}
	decoded := jsonTokenPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Token{}, fmt.Errorf("core: decode token payload: %w", err)
	}
	token := Token{
		Value:    strings.TrimSpace(decoded.Value),
		Metadata: copyAnyMap(decoded.Metadata),
	}
	if decoded.ExpiresAt != nil {
		token.ExpiresAt = decoded.ExpiresAt.UTC()
	}
	if decoded.IssuedAt != nil {
		token.IssuedAt = decoded.IssuedAt.UTC()
	}
	return token, nil
}

// LegacySecretsTokenCodec reads and writes the flat secrets-file shape
// older deployments persisted: a bare access_token string next to an
// absolute unix-seconds expire field.
type LegacySecretsTokenCodec struct{}

func (LegacySecretsTokenCodec) Format() string {
	return TokenPayloadFormatLegacySecrets
}

func (LegacySecretsTokenCodec) Version() int {
	return TokenPayloadVersionV1
}

type legacySecretsPayload struct {
	AccessToken string `json:"access_token"`
	Expire      int64  `json:"expire,omitempty"`
}

func (LegacySecretsTokenCodec) Encode(token Token) ([]byte, error) {
	value := strings.TrimSpace(token.Value)
	if value == "" {
		return nil, fmt.Errorf("core: legacy token payload requires a token value")
	}
	payload := legacySecretsPayload{AccessToken: value}
	if !token.ExpiresAt.IsZero() {
		payload.Expire = token.ExpiresAt.UTC().Unix()
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("core: encode legacy token payload: %w", err)
	}
	return encoded, nil
}

func (LegacySecretsTokenCodec) Decode(payload []byte) (Token, error) {
	if len(payload) == 0 {
		return Token{}, fmt.Errorf("core: legacy token payload is empty")
	}
	decoded := legacySecretsPayload{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return Token{}, fmt.Errorf("core: decode legacy token payload: %w", err)
	}
	value := strings.TrimSpace(decoded.AccessToken)
	if value == "" {
		return Token{}, fmt.Errorf("core: legacy token payload is missing access_token")
	}
	token := Token{Value: value}
	if decoded.Expire > 0 {
		token.ExpiresAt = time.Unix(decoded.Expire, 0).UTC()
	}
	return token, nil
}
