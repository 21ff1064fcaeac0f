package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/dmitrijs2005/tenantkeeper/internal/common"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/gate"
	"github.com/dmitrijs2005/tenantkeeper/internal/server/tenants"
)

type onboardingRequest struct {
	Company *tenants.CompanyProfile `json:"company"`
}

type tenantView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	NIT      string `json:"nit"`
	DV       int    `json:"dv"`
	TenantDB string `json:"tenant_db"`
	Slug     string `json:"tenant_slug"`
	Status   string `json:"status"`
}

type onboardingResponse struct {
	Message     string              `json:"message"`
	Tenant      tenantView          `json:"tenant"`
	Collections map[string][]string `json:"collections"`
}

func (s *Server) onboard(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	var in onboardingRequest
	if err := json.Unmarshal(rc.Request.Body, &in); err != nil {
		return nil, common.Wrap(common.KindValidation, "request body must be a JSON object", err)
	}
	if in.Company == nil {
		return nil, common.New(common.KindValidation, `field "company" is required`)
	}

	res, err := s.provisioner.Onboard(ctx, rc.Principal, *in.Company)
	if err != nil {
		return nil, err
	}

	e := res.Entry
	return &gate.Response{
		Status: http.StatusCreated,
		Body: onboardingResponse{
			Message: "tenant storage and initial collections created",
			Tenant: tenantView{
				ID:       e.ID,
				Name:     e.Name,
				NIT:      e.NIT,
				DV:       e.CheckDigit,
				TenantDB: e.TenantDB,
				Slug:     e.Slug,
				Status:   e.Status,
			},
			Collections: collectionIndexes(res.Collections),
		},
	}, nil
}

// collectionIndexes lists the index names of each provisioned collection.
func collectionIndexes(names []string) map[string][]string {
	specs := make(map[string]tenants.CollectionSpec, len(tenants.TenantCollections))
	for _, c := range tenants.TenantCollections {
		specs[c.Name] = c
	}

	out := make(map[string][]string, len(names))
	for _, n := range names {
		idx := []string{}
		for _, m := range specs[n].Indexes {
			idx = append(idx, m.IndexName(n))
		}
		out[n] = idx
	}
	return out
}

const adminKeyHeader = "X-Admin-Key"

type enrollmentRequest struct {
	Email string `json:"email"`
}

// enroll creates a user and returns its first session token. Callers
// present the shared admin key instead of a bearer token.
func (s *Server) enroll(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	key, ok := rc.Request.Headers.Get(adminKeyHeader)
	if !ok || key == "" {
		return nil, common.ErrMissingCredential
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.AdminKey)) != 1 {
		return nil, common.ErrForbidden
	}

	var in enrollmentRequest
	if err := json.Unmarshal(rc.Request.Body, &in); err != nil {
		return nil, common.Wrap(common.KindValidation, "request body must be a JSON object", err)
	}

	user, token, err := s.sessions.Enroll(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusCreated, Body: map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"token": token,
	}}, nil
}

func (s *Server) rotateSession(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	token, err := s.sessions.Rotate(ctx, principalID(rc))
	if err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusOK, Body: map[string]string{"token": token}}, nil
}

func (s *Server) revokeSession(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	if err := s.sessions.Revoke(ctx, principalID(rc)); err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusNoContent}, nil
}

func (s *Server) listRecords(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	items, err := s.records.List(ctx, rc.Principal.TenantBinding, rc.Request.PathParams["table"])
	if err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusOK, Body: map[string]any{
		"total_items": len(items),
		"items":       items,
	}}, nil
}

func (s *Server) getRecord(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	p := rc.Request.PathParams
	item, err := s.records.Get(ctx, rc.Principal.TenantBinding, p["table"], p["id"])
	if err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusOK, Body: map[string]any{"item": item}}, nil
}

func (s *Server) createRecord(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	var body map[string]any
	if err := json.Unmarshal(rc.Request.Body, &body); err != nil || body == nil {
		return nil, common.New(common.KindValidation, "request body must be a JSON object")
	}

	item, err := s.records.Create(ctx, rc.Principal.TenantBinding, rc.Request.PathParams["table"], principalID(rc), body)
	if err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusCreated, Body: map[string]any{
		"message": "record created",
		"item":    item,
	}}, nil
}

func (s *Server) deleteRecord(ctx context.Context, rc *gate.RequestContext) (*gate.Response, error) {
	p := rc.Request.PathParams
	if err := s.records.Delete(ctx, rc.Principal.TenantBinding, p["table"], principalID(rc), p["id"]); err != nil {
		return nil, err
	}
	return &gate.Response{Status: http.StatusOK, Body: map[string]string{"message": "record marked as deleted"}}, nil
}
