package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
)

func (s *GRPCServer) Generate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	content := f["content"].GetStructValue().AsMap()
	owner, _ := content["sub"].(string)

	res, err := s.tokens.Generate(ctx, services.GenerateRequest{
		OwnerID:           owner,
		Name:              f["JWTName"].GetStringValue(),
		Claims:            content,
		ExpirationMinutes: int(f["expirationInMinutes"].GetNumberValue()),
		Audience:          stringList(f["audience"]),
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "token generated", "token_id", res.TokenID)
	return s.reply(ctx, map[string]any{
		"status":    "created",
		"name":      res.Name,
		"token":     res.Token,
		"tokenId":   res.TokenID,
		"audience":  anyList(res.Audience),
		"issuedAt":  timestamp(res.IssuedAt),
		"expiresAt": timestamp(res.ExpiresAt),
	})
}

func (s *GRPCServer) ListMine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, s.toStatus(ctx, common.ErrMissingCredential)
	}

	filter, err := listFilter(req.GetFields())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := s.tokens.List(ctx, p.OwnerID, filter)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	items := make([]any, 0, len(out))
	for _, t := range out {
		item := map[string]any{
			"tokenId":   t.TokenID,
			"jwtName":   t.Name,
			"status":    string(t.Status),
			"issuedAt":  timestamp(t.IssuedAt),
			"expiresAt": timestamp(t.ExpiresAt),
			"audience":  anyList(t.Audience),
		}
		if t.RevokedAt != nil {
			item["revokedAt"] = timestamp(*t.RevokedAt)
			item["revocationReason"] = t.RevocationReason
		}
		items = append(items, item)
	}
	return s.reply(ctx, map[string]any{"tokens": items})
}

func (s *GRPCServer) Extend(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, s.toStatus(ctx, common.ErrMissingCredential)
	}

	f := req.GetFields()
	tokenID := f["tokenId"].GetStringValue()
	if tokenID == "" {
		tokenID = p.TokenID
	}

	res, err := s.tokens.Extend(ctx, p.OwnerID, tokenID, int(f["extensionInMinutes"].GetNumberValue()))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.reply(ctx, map[string]any{
		"status":    "extended",
		"tokenId":   res.TokenID,
		"token":     res.Token,
		"expiresAt": timestamp(res.ExpiresAt),
	})
}

func (s *GRPCServer) Revoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, s.toStatus(ctx, common.ErrMissingCredential)
	}

	f := req.GetFields()
	tokenID := f["tokenId"].GetStringValue()
	if tokenID == "" {
		tokenID = p.TokenID
	}

	res, err := s.tokens.Revoke(ctx, p.OwnerID, tokenID, f["reason"].GetStringValue())
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return s.reply(ctx, map[string]any{
		"tokenId":        res.TokenID,
		"status":         "revoked",
		"alreadyRevoked": res.AlreadyRevoked,
		"revokedAt":      timestamp(res.RevokedAt),
	})
}

func (s *GRPCServer) reply(ctx context.Context, m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, s.toStatus(ctx, fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

func listFilter(f map[string]*structpb.Value) (services.ListFilter, error) {
	filter := services.ListFilter{
		Name:   f["jwtName"].GetStringValue(),
		Limit:  int(f["limit"].GetNumberValue()),
		Offset: int(f["offset"].GetNumberValue()),
	}
	if st := f["status"].GetStringValue(); st != "" {
		parsed, ok := models.ParseStatus(st)
		if !ok {
			return filter, fmt.Errorf("%w: unknown status %q", common.ErrInvalidRequest, st)
		}
		filter.Status = parsed
	}

	bounds := []struct {
		key string
		dst **time.Time
	}{
		{"issuedAfter", &filter.IssuedAfter},
		{"issuedBefore", &filter.IssuedBefore},
		{"expiresAfter", &filter.ExpiresAfter},
		{"expiresBefore", &filter.ExpiresBefore},
	}
	for _, b := range bounds {
		raw := f[b.key].GetStringValue()
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("%w: %s: %w", common.ErrInvalidRequest, b.key, err)
		}
		*b.dst = &t
	}
	return filter, nil
}

func stringList(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		out = append(out, item.GetStringValue())
	}
	return out
}

func anyList(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
