package core

import (
	"context"
	"time"
)

// TokenState is the resolved freshness snapshot for a token at one
// instant. IsFresh applies the configured validity margin; IsExpired
// ignores it.
type TokenState struct {
	HasValue  bool
	IsExpired bool
	IsFresh   bool
	ExpiresAt time.Time
}

func ResolveTokenState(now time.Time, token Token, margin time.Duration) TokenState {
	state := TokenState{
		HasValue:  token.Value != "",
		ExpiresAt: token.ExpiresAt.UTC(),
	}
	if token.ExpiresAt.IsZero() {
		// No expiry on record: not provably expired, never fresh.
		return state
	}
	now = now.UTC()
	state.IsExpired = !now.Before(token.ExpiresAt.UTC())
	state.IsFresh = token.Fresh(now, margin)
	return state
}

// ShouldRefreshToken reports whether a refresh is due: no token on hand,
// or inside the margin window.
func ShouldRefreshToken(state TokenState) bool {
	if !state.HasValue {
		return true
	}
	return !state.IsFresh
}

type EnsureTokenFreshRequest struct {
	Force bool
}

type EnsureTokenFreshResult struct {
	Token            Token
	State            TokenState
	RefreshAttempted bool
	Refreshed        bool
}

// EnsureTokenFresh resolves the cached token state and refreshes through
// the token source when the margin window has been entered or the caller
// forces it.
func (s *Service) EnsureTokenFresh(ctx context.Context, req EnsureTokenFreshRequest) (EnsureTokenFreshResult, error) {
	if s == nil || s.tokenSource == nil {
		return EnsureTokenFreshResult{}, s.mapError(ErrTokenNotFound)
	}

	now := time.Now().UTC()
	current := s.tokenSource.Cached()
	state := ResolveTokenState(now, current, s.config.Auth.TokenMargin)

	result := EnsureTokenFreshResult{Token: current, State: state}
	if !req.Force && !ShouldRefreshToken(state) {
		return result, nil
	}

	result.RefreshAttempted = true
	if req.Force {
		if err := s.tokenSource.Invalidate(ctx); err != nil {
			return result, s.mapError(err)
		}
	}
	refreshed, err := s.tokenSource.Token(ctx)
	if err != nil {
		return result, s.mapError(err)
	}
	result.Token = refreshed
	result.State = ResolveTokenState(time.Now().UTC(), refreshed, s.config.Auth.TokenMargin)
	result.Refreshed = refreshed.Value != current.Value || !refreshed.ExpiresAt.Equal(current.ExpiresAt)
	return result, nil
}
