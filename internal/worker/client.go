// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuGH/reelvault/internal/catalog"
	"github.com/ManuGH/reelvault/internal/log"
)

// Client is the typed facade over a Channel. Read methods return their
// default value (empty slice, empty map, not found) when the worker fails;
// mutations return the error.
type Client struct {
	ch *Channel
}

// NewClient wraps ch.
func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

// Channel exposes the underlying controller.
func (c *Client) Channel() *Channel { return c.ch }

func (c *Client) ListRoots(ctx context.Context) []catalog.Root {
	return read(ctx, c.ch, OpRootsList, nil, []catalog.Root{})
}

// ActiveRoots returns the roots used for authorization. An unreachable
// worker yields an empty allow-list, which denies everything.
func (c *Client) ActiveRoots(ctx context.Context) []catalog.Root {
	return read(ctx, c.ch, OpRootsActive, nil, []catalog.Root{})
}

func (c *Client) AddRoot(ctx context.Context, path string, kind catalog.SourceKind) (catalog.Root, error) {
	return mutate[catalog.Root](ctx, c.ch, OpRootsAdd, AddRootPayload{Path: path, SourceKind: kind})
}

func (c *Client) RemoveRoot(ctx context.Context, id string) error {
	_, err := c.ch.Do(ctx, OpRootsRemove, RootIDPayload{ID: id})
	return err
}

func (c *Client) SetRootActive(ctx context.Context, id string, active bool) (catalog.Root, error) {
	return mutate[catalog.Root](ctx, c.ch, OpRootsSetActive, SetRootActivePayload{ID: id, Active: active})
}

func (c *Client) RecordView(ctx context.Context, path string, at time.Time) error {
	_, err := c.ch.Do(ctx, OpViewsRecord, RecordViewPayload{Path: path, At: at})
	return err
}

func (c *Client) ViewCounts(ctx context.Context, paths []string) map[string]int64 {
	return read(ctx, c.ch, OpViewsCounts, ViewCountsPayload{Paths: paths}, map[string]int64{})
}

func (c *Client) SaveMetadata(ctx context.Context, path string, doc json.RawMessage) error {
	_, err := c.ch.Do(ctx, OpMetadataSave, SaveMetadataPayload{Path: path, Doc: doc})
	return err
}

func (c *Client) GetMetadata(ctx context.Context, path string) (json.RawMessage, bool) {
	r := read(ctx, c.ch, OpMetadataGet, PathPayload{Path: path}, MetadataResult{})
	return r.Doc, r.Found
}

func (c *Client) SaveCredential(ctx context.Context, provider, secret string) error {
	_, err := c.ch.Do(ctx, OpCredentialsSave, SaveCredentialPayload{Provider: provider, Secret: secret})
	return err
}

func (c *Client) GetCredential(ctx context.Context, provider string) (string, bool) {
	r := read(ctx, c.ch, OpCredentialsGet, ProviderPayload{Provider: provider}, CredentialResult{})
	return r.Secret, r.Found
}

func read[T any](ctx context.Context, ch *Channel, op OpType, payload any, def T) T {
	raw, _ := ch.Do(ctx, op, payload)
	if len(raw) == 0 {
		return def
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		ch.logger.Warn().Err(err).Str(log.FieldOpType, string(op)).Msg("undecodable read result, using default")
		return def
	}
	return out
}

func mutate[T any](ctx context.Context, ch *Channel, op OpType, payload any) (T, error) {
	var out T
	raw, err := ch.Do(ctx, op, payload)
	if err != nil {
		return out, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}
