package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/authcore/rotation"
)

// OAuth2 refreshes against an upstream OAuth 2.0 token endpoint. The
// upstream refresh token is sent as Request.RefreshToken and never reaches
// the engine's callers.
type OAuth2 struct {
	name   string
	config *oauth2.Config
	client *http.Client
}

// NewOAuth2 returns an adapter for cfg. client may be nil.
func NewOAuth2(name string, cfg *oauth2.Config, client *http.Client) *OAuth2 {
	if name == "" {
		name = "oauth2"
	}
	return &OAuth2{name: name, config: cfg, client: client}
}

func (o *OAuth2) Name() string { return o.name }

func (o *OAuth2) UpstreamIssued() bool { return true }

// IssueOrRefresh runs a refresh_token grant. The x/oauth2 token fills a
// missing refresh_token with the one sent in the request, so presence is read
// from the raw response instead of Token.RefreshToken.
func (o *OAuth2) IssueOrRefresh(ctx context.Context, req Request) (Result, error) {
	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}

	tok, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: req.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
			return Result{}, fmt.Errorf("%w: %s", ErrRejected, re.ErrorCode)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := Result{
		RefreshToken: rawRefreshToken(tok),
		Metadata:     map[string]string{"provider": o.name},
	}
	if tok.TokenType != "" {
		result.Metadata["token_type"] = tok.TokenType
	}
	if !tok.Expiry.IsZero() {
		result.Metadata["upstream_expiry"] = tok.Expiry.UTC().Format(time.RFC3339)
	}
	return result, nil
}

func rawRefreshToken(tok *oauth2.Token) rotation.OptionalSecret {
	v, _ := tok.Extra("refresh_token").(string)
	if v == "" {
		return rotation.Absent()
	}
	return rotation.Present(v)
}
