package devkit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-vendit/core"
)

// IssuanceScript is one canned token issuance.
type IssuanceScript struct {
	Token core.Token
	Err   error
}

// FakeTokenIssuer replays scripted issuances. Like the transport fake,
// the final script repeats once the sequence runs out, and every call is
// counted so tests can assert on single-flight behavior.
type FakeTokenIssuer struct {
	mu      sync.Mutex
	scripts []IssuanceScript
	calls   int
}

func NewFakeTokenIssuer(scripts ...IssuanceScript) *FakeTokenIssuer {
	return &FakeTokenIssuer{scripts: append([]IssuanceScript(nil), scripts...)}
}

// TokenScript builds a script issuing value with the given lifetime from
// the moment of issuance.
func TokenScript(value string, lifetime time.Duration) IssuanceScript {
	return IssuanceScript{Token: core.Token{Value: value, ExpiresAt: time.Now().UTC().Add(lifetime)}}
}

// RejectionScript builds a script that fails like the auth endpoint
// rejecting the account credentials.
func RejectionScript() IssuanceScript {
	return IssuanceScript{Err: core.NewAuthError(
		"vendit auth endpoint rejected the credentials",
		core.AuthReasonInvalidCredentials,
	)}
}

func (i *FakeTokenIssuer) IssueToken(_ context.Context, credentials core.Credentials) (core.Token, error) {
	if i == nil {
		return core.Token{}, fmt.Errorf("devkit: fake token issuer is nil")
	}
	if err := credentials.Validate(); err != nil {
		return core.Token{}, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls++
	index := i.calls - 1
	if index >= len(i.scripts) {
		index = len(i.scripts) - 1
	}
	if index < 0 {
		return core.Token{
			Value:     fmt.Sprintf("tok_devkit_%d", i.calls),
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			IssuedAt:  time.Now().UTC(),
		}, nil
	}
	script := i.scripts[index]
	return script.Token, script.Err
}

// Issuances reports how many times IssueToken has been called.
func (i *FakeTokenIssuer) Issuances() int {
	if i == nil {
		return 0
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

var _ core.TokenIssuer = (*FakeTokenIssuer)(nil)
