package agent

import (
	"fmt"
	"strings"

	"github.com/marketintel/engine/internal/domain"
	"github.com/marketintel/engine/internal/memory"
)

// focusSpec is one specialist's framing: the lens it reads the
// briefing document through and the angle its key_drivers should
// emphasize. Kept as data rather than one struct type per agent,
// matching the registry-of-constructors shape spec §4.4/§6 describes
// ("a registry maps AgentKind → constructor(provider, prompt_template,
// output_schema)").
type focusSpec struct {
	role  string
	focus string
}

var focusTable = map[Kind]focusSpec{
	KindMarketMicrostructure: {
		role:  "a market microstructure analyst",
		focus: "order book liquidity, bid-ask spread, and how easily a position could be built or exited without moving the price",
	},
	KindProbabilityBaseline: {
		role:  "a base-rate forecaster",
		focus: "reference-class base rates: how similar questions of this event_type have historically resolved, independent of this market's current price",
	},
	KindRiskAssessment: {
		role:  "a resolution-risk analyst",
		focus: "ambiguity in the resolution criteria, tail scenarios that could force an unexpected resolution, and anything in ambiguity_flags",
	},
	KindBreakingNews: {
		role:  "a breaking-news analyst",
		focus: "the most recent news items and whether they shift the probability of the stated question resolving YES",
	},
	KindEventImpact: {
		role:  "an event-impact analyst",
		focus: "how the scheduled catalysts in key_catalysts are likely to move the outcome, and their timing relative to expiry",
	},
	KindPollingIntelligence: {
		role:  "a polling aggregator",
		focus: "the available polling data: sample quality, trend direction, and convergence or divergence across polls",
	},
	KindHistoricalPattern: {
		role:  "a reference-class historian",
		focus: "how closely-analogous past events resolved, and what pattern that implies here",
	},
	KindMediaSentiment: {
		role:  "a media sentiment analyst",
		focus: "the tone and framing of mainstream media coverage of this question",
	},
	KindSocialSentiment: {
		role:  "a social sentiment analyst",
		focus: "the volume and direction of social discussion, correcting for bot activity or coordinated posting",
	},
	KindNarrativeVelocity: {
		role:  "a narrative velocity analyst",
		focus: "how fast the dominant narrative around this question is changing, and whether that velocity is accelerating toward one outcome",
	},
	KindMomentum: {
		role:  "a price-momentum analyst",
		focus: "the recent price trend in recent_prices and whether it is likely to continue",
	},
	KindMeanReversion: {
		role:  "a mean-reversion analyst",
		focus: "whether the current price has overshot a fair level implied by recent_prices and is likely to revert",
	},
	KindCatalyst: {
		role:  "a catalyst-scenario analyst",
		focus: "the single most probability-moving upcoming catalyst and the range of outcomes it could produce",
	},
	KindTailRisk: {
		role:  "a tail-risk analyst",
		focus: "low-probability, high-impact scenarios that the other analyses would miss by focusing on the modal outcome",
	},
}

func buildPrompt(kind Kind) PromptBuilder {
	spec := focusTable[kind]
	return func(input Input) (string, string) {
		systemPrompt := fmt.Sprintf(
			"You are %s evaluating a binary prediction market. Focus specifically on %s. "+
				"Respond with a single JSON object and no other text.",
			spec.role, spec.focus,
		)
		return systemPrompt, buildUserPrompt(input)
	}
}

func buildUserPrompt(input Input) string {
	mbd := input.MBD
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", mbd.Question)
	fmt.Fprintf(&b, "Resolution criteria: %s\n", mbd.ResolutionCriteria)
	fmt.Fprintf(&b, "Event type: %s\n", mbd.EventType)
	fmt.Fprintf(&b, "Current market probability: %.4f\n", mbd.CurrentProbability)
	fmt.Fprintf(&b, "Liquidity score: %.2f (0-10), bid-ask spread: %.4f\n", mbd.LiquidityScore, mbd.BidAskSpread)
	fmt.Fprintf(&b, "Volatility regime: %s, 24h volume: %.2f\n", mbd.VolatilityRegime, mbd.Volume24h)
	fmt.Fprintf(&b, "Expiry: %s\n", mbd.ExpiryTimestamp.Format("2006-01-02T15:04:05Z"))

	if len(mbd.AmbiguityFlags) > 0 {
		fmt.Fprintf(&b, "Ambiguity flags: %s\n", strings.Join(mbd.AmbiguityFlags, ", "))
	}
	if len(mbd.KeyCatalysts) > 0 {
		b.WriteString("Key catalysts:\n")
		for _, c := range mbd.KeyCatalysts {
			fmt.Fprintf(&b, "  - %s at %s\n", c.Event, c.Timestamp.Format("2006-01-02"))
		}
	}

	writeExternalData(&b, input.ExternalData)
	writeMemory(&b, input.Memory)

	b.WriteString("\nRespond with JSON: {\"direction\": \"YES\"|\"NO\"|\"NEUTRAL\", " +
		"\"fair_probability\": number in [0,1], \"confidence\": number in [0,1], " +
		"\"key_drivers\": [1 to 5 short strings], \"risk_factors\": [0 or more short strings]}")

	return b.String()
}

func writeExternalData(b *strings.Builder, data *domain.ExternalDataBundle) {
	if data == nil {
		return
	}
	writeSnapshot(b, "News", data.News)
	writeSnapshot(b, "Polling", data.Polling)
	writeSnapshot(b, "Social", data.Social)
}

func writeSnapshot(b *strings.Builder, label string, snap *domain.DataSnapshot) {
	if snap == nil || len(snap.Items) == 0 {
		return
	}
	staleness := ""
	if snap.Stale {
		staleness = " (stale)"
	}
	fmt.Fprintf(b, "\n%s data%s, %d items:\n", label, staleness, len(snap.Items))
	for i, item := range snap.Items {
		if i >= 10 {
			fmt.Fprintf(b, "  ... and %d more\n", len(snap.Items)-10)
			break
		}
		fmt.Fprintf(b, "  - %v\n", item)
	}
}

func writeMemory(b *strings.Builder, recalls []memory.Recall) {
	if len(recalls) == 0 {
		return
	}
	b.WriteString("\nPrior analyses of this market:\n")
	for _, r := range recalls {
		fmt.Fprintf(b, "  - concluded %.4f probability (%s), recommended %s: %s\n",
			r.ConsensusProbability, r.Regime, r.Action, r.CoreThesis)
	}
}
