package matcher

import (
	"context"
	"encoding/json"
	"strings"

	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service resolves which requirement documents apply to a subcontractor on a
// project, grouped by tier.
type Service struct {
	DB *gorm.DB
}

// TierGroup is one tier's worth of applicable requirements, rendered in
// numeric tier order.
type TierGroup struct {
	Tier         int                                  `json:"tier"`
	Requirements []domain.ProjectInsuranceRequirement `json:"requirements"`
}

// NormalizeTrades lower-cases, trims and de-duplicates a trade list,
// preserving first-seen order. When the list is empty, the single legacy
// trade field is used instead.
func NormalizeTrades(trades []string, legacy *string) []string {
	if len(trades) == 0 && legacy != nil && strings.TrimSpace(*legacy) != "" {
		trades = []string{*legacy}
	}
	seen := make(map[string]bool, len(trades))
	out := make([]string, 0, len(trades))
	for _, t := range trades {
		n := strings.ToLower(strings.TrimSpace(t))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// tradeMatches reports whether a requirement trade matches a subcontractor
// trade. Matching is case-insensitive and deliberately permissive: equality
// or substring containment in either direction, so "Roofing" matches both
// "Roofers" and "Roofing Contractor". Over-inclusion is the documented
// contract here; missing a requirement is a compliance risk, an extra one is
// only a UX nuisance.
func tradeMatches(reqTrade, subTrade string) bool {
	r := strings.ToLower(strings.TrimSpace(reqTrade))
	s := strings.ToLower(strings.TrimSpace(subTrade))
	if r == "" || s == "" {
		return false
	}
	return r == s || strings.Contains(s, r) || strings.Contains(r, s)
}

// Applies reports whether a requirement applies to the given normalized
// subcontractor trades. An empty applicable_trades list applies to every
// trade in the tier.
func Applies(req *domain.ProjectInsuranceRequirement, subTrades []string) bool {
	reqTrades := DecodeStringList(req.ApplicableTrades)
	if len(reqTrades) == 0 {
		return true
	}
	for _, r := range reqTrades {
		for _, s := range subTrades {
			if tradeMatches(r, s) {
				return true
			}
		}
	}
	return false
}

// RequirementsFor returns the project's active requirements applicable to the
// given project-subcontractor, grouped by tier (1, 2, 3 in that order). A
// subcontractor with multiple qualifying trades sees the union of matches.
func (s *Service) RequirementsFor(ctx context.Context, projectID, projectSubID uuid.UUID) ([]TierGroup, error) {
	var ps domain.ProjectSubcontractor
	if err := s.DB.WithContext(ctx).Where("id = ? AND project_id = ?", projectSubID, projectID).First(&ps).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("Project subcontractor not found")
		}
		return nil, err
	}

	trades := DecodeStringList(ps.Trades)
	var legacy *string
	if len(trades) == 0 && ps.SubcontractorID != nil {
		var sub domain.Contractor
		if err := s.DB.WithContext(ctx).Where("id = ?", *ps.SubcontractorID).First(&sub).Error; err == nil {
			trades = DecodeStringList(sub.TradeTypes)
			legacy = sub.TradeType
		}
	}
	normalized := NormalizeTrades(trades, legacy)

	var reqs []domain.ProjectInsuranceRequirement
	if err := s.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("requirement_tier ASC, created_at ASC").
		Find(&reqs).Error; err != nil {
		return nil, err
	}

	groups := []TierGroup{{Tier: 1}, {Tier: 2}, {Tier: 3}}
	for _, req := range reqs {
		if req.RequirementTier < 1 || req.RequirementTier > 3 {
			continue
		}
		if Applies(&req, normalized) {
			g := &groups[req.RequirementTier-1]
			g.Requirements = append(g.Requirements, req)
		}
	}
	return groups, nil
}

// DecodeStringList decodes a jsonb column holding an array of strings.
// Malformed or null payloads decode to nil.
func DecodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
