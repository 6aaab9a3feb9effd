package provider

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/rotation"
)

var (
	// ErrRejected means the upstream refused the presented secret.
	ErrRejected = errors.New("provider: refresh rejected")
	// ErrUnavailable means the upstream could not be reached or failed
	// transiently.
	ErrUnavailable = errors.New("provider: upstream unavailable")
)

// Request describes the session being refreshed. RefreshToken is the secret
// the adapter itself issued last time: the caller's token for local adapters,
// the stored upstream token for Upstream ones.
type Request struct {
	AccountID    string
	Email        string
	RefreshToken string
}

// Result is what the credential-issuing call returned.
type Result struct {
	RefreshToken rotation.OptionalSecret
	Metadata     map[string]string
}

// Adapter performs the credential-issuing step of a refresh.
type Adapter interface {
	Name() string
	IssueOrRefresh(ctx context.Context, req Request) (Result, error)
}

// Upstream is implemented by adapters whose secret is issued by a remote
// authority. Such a secret stays server-side; callers hold an engine-minted
// token that maps to it.
type Upstream interface {
	Adapter
	UpstreamIssued() bool
}

// IsUpstream reports whether a's secret comes from a remote issuer.
func IsUpstream(a Adapter) bool {
	u, ok := a.(Upstream)
	return ok && u.UpstreamIssued()
}

// MintFunc returns a fresh opaque secret.
type MintFunc func() (string, error)

// Rotating issues a new secret on every refresh.
type Rotating struct {
	mint MintFunc
}

// NewRotating returns an adapter that rotates using mint.
func NewRotating(mint MintFunc) *Rotating {
	return &Rotating{mint: mint}
}

func (r *Rotating) Name() string { return "rotating" }

func (r *Rotating) IssueOrRefresh(ctx context.Context, _ Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	next, err := r.mint()
	if err != nil {
		return Result{}, err
	}
	return Result{RefreshToken: rotation.Present(next)}, nil
}

// Static never returns a secret, so the caller keeps the one it holds.
type Static struct{}

func (Static) Name() string { return "static" }

func (Static) IssueOrRefresh(ctx context.Context, _ Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{RefreshToken: rotation.Absent()}, nil
}

// Reissuing returns the presented secret unchanged in every response.
type Reissuing struct{}

func (Reissuing) Name() string { return "reissuing" }

func (Reissuing) IssueOrRefresh(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{RefreshToken: rotation.Present(req.RefreshToken)}, nil
}
