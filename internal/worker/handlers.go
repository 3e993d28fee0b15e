// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ManuGH/reelvault/internal/catalog"
)

func defaultHandlers() map[OpType]handlerFunc {
	return map[OpType]handlerFunc{
		OpRootsList: func(ctx context.Context, s *catalog.Store, _ json.RawMessage) (any, error) {
			return s.ListRoots(ctx)
		},
		OpRootsActive: func(ctx context.Context, s *catalog.Store, _ json.RawMessage) (any, error) {
			return s.ActiveRoots(ctx)
		},
		OpRootsAdd: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p AddRootPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return s.AddRoot(ctx, p.Path, p.SourceKind)
		},
		OpRootsRemove: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p RootIDPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.RemoveRoot(ctx, p.ID)
		},
		OpRootsSetActive: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p SetRootActivePayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return s.SetRootActive(ctx, p.ID, p.Active)
		},
		OpViewsRecord: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p RecordViewPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.RecordView(ctx, p.Path, p.At)
		},
		OpViewsCounts: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p ViewCountsPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return s.ViewCounts(ctx, p.Paths)
		},
		OpMetadataSave: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p SaveMetadataPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.SaveMetadata(ctx, p.Path, p.Doc)
		},
		OpMetadataGet: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p PathPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			doc, found, err := s.GetMetadata(ctx, p.Path)
			if err != nil {
				return nil, err
			}
			return MetadataResult{Doc: doc, Found: found}, nil
		},
		OpCredentialsSave: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p SaveCredentialPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.SaveCredential(ctx, p.Provider, p.Secret)
		},
		OpCredentialsGet: func(ctx context.Context, s *catalog.Store, raw json.RawMessage) (any, error) {
			var p ProviderPayload
			if err := decode(raw, &p); err != nil {
				return nil, err
			}
			secret, found, err := s.GetCredential(ctx, p.Provider)
			if err != nil {
				return nil, err
			}
			return CredentialResult{Secret: secret, Found: found}, nil
		},
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
