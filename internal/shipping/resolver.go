package shipping

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-food/internal/money"
)

// TerminalFallbackFee is charged when no tier is configured at all, so a
// configuration gap never blocks checkout and never silently ships for free.
var TerminalFallbackFee = money.New(30_000)

// Result is the resolved delivery fee plus a human-readable explanation.
type Result struct {
	Fee       money.Money `json:"fee"`
	Rationale string      `json:"rationale"`
	TierID    string      `json:"tierId,omitempty"`
	Fallback  bool        `json:"fallback"`
}

// TierSource provides the configured tier set.
type TierSource interface {
	Tiers(ctx context.Context) ([]Tier, error)
}

// Resolver picks the shipping fee for a subtotal. It never fails.
type Resolver struct {
	Source      TierSource
	FallbackFee *money.Money
	Logger      zerolog.Logger
}

// Resolve selects the tier containing subtotal, preferring the default tier
// among several matches and otherwise the lowest sort order. With no match it
// falls back to the default tier and then to the terminal fee.
func (r *Resolver) Resolve(ctx context.Context, subtotal money.Money, area Area) Result {
	var tiers []Tier
	if r != nil && r.Source != nil {
		loaded, err := r.Source.Tiers(ctx)
		if err != nil {
			r.Logger.Warn().Err(err).Msg("shipping tiers unavailable, using fallback fee")
		} else {
			tiers = loaded
		}
	}

	ordered := append([]Tier(nil), tiers...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })

	var match, def *Tier
	for i := range ordered {
		t := &ordered[i]
		if t.IsDefault && def == nil {
			def = t
		}
		if !t.Contains(subtotal) {
			continue
		}
		if match == nil || (t.IsDefault && !match.IsDefault) {
			match = t
		}
	}

	dest := ""
	if s := area.String(); s != "" {
		dest = " to " + s
	}

	if match != nil {
		fee, free := match.FeeFor(subtotal)
		if free {
			return Result{Fee: fee, TierID: match.ID, Rationale: fmt.Sprintf(
				"free delivery%s: subtotal %s reaches threshold %s of tier %q", dest, subtotal, match.FreeShippingThreshold, match.Name)}
		}
		return Result{Fee: fee, TierID: match.ID, Rationale: fmt.Sprintf(
			"tier %q %s applies to subtotal %s%s", match.Name, match.bracket(), subtotal, dest)}
	}

	if def != nil {
		fee, free := def.FeeFor(subtotal)
		if free {
			return Result{Fee: fee, TierID: def.ID, Fallback: true, Rationale: fmt.Sprintf(
				"no tier matches subtotal %s; default tier %q waives the fee above %s", subtotal, def.Name, def.FreeShippingThreshold)}
		}
		return Result{Fee: fee, TierID: def.ID, Fallback: true, Rationale: fmt.Sprintf(
			"no tier matches subtotal %s; default tier %q applied%s", subtotal, def.Name, dest)}
	}

	fee := TerminalFallbackFee
	if r != nil && r.FallbackFee != nil {
		fee = *r.FallbackFee
	}
	return Result{Fee: fee, Fallback: true, Rationale: fmt.Sprintf(
		"no shipping tiers configured; flat fallback fee %s applied%s", fee, dest)}
}
