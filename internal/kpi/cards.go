package kpi

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/seuros/scalex/internal/chart"
)

// Card is the data object of one KPI chart response. Keys match the catalog
// field paths; a ratio with a zero denominator is null.
type Card map[string]any

// Builder derives one card from the metric rows.
type Builder func(Metrics) Card

// Cards maps the KPI chart identifiers to their builders.
var Cards = map[chart.ID]Builder{
	"business_kpis": Business,
	"campaign_kpis": Campaign,
}

// Build fetches the rows from src and derives the card for id.
func Build(ctx context.Context, src Source, id chart.ID) (Card, error) {
	build, ok := Cards[id]
	if !ok {
		return nil, fmt.Errorf("no kpi card %q", id)
	}
	m, err := src.Metrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("load metrics: %w", err)
	}
	return build(m), nil
}

// Business derives the website engagement KPIs.
func Business(m Metrics) Card {
	views := m.value("total_page_views")
	sessions := m.value("total_sessions")
	interactions := m.value("total_interactions")

	return Card{
		"clickThroughRate":       percent(m.value("total_clicks"), views),
		"bounceRate":             percent(m.value("single_page_sessions"), sessions),
		"avgSessionMinutes":      minutes(m.value("total_session_duration"), sessions),
		"avgTimeOnPageMinutes":   minutes(m.value("total_time_on_page"), views),
		"pagesPerSession":        per(views, sessions),
		"eventEngagementRate":    per(interactions, sessions),
		"avgPageLoadMs":          unit(m.value("total_page_load_time"), views, "ms"),
		"formSubmissionRate":     percent(m.value("total_form_submissions"), sessions),
		"topEngagedCountry":      m.text("most_engaged_country"),
		"topEngagedRegion":       m.text("most_engaged_state"),
		"topEngagedCity":         m.text("most_engaged_city"),
		"avgInteractionsPerUser": per(interactions, m.value("total_users")),
		"engagedUsers":           count(m, "engaged_users"),
		"avgScrollDepth":         format(round2(m.value("avg_scroll_depth"))) + "%",
		"exitRate":               percent(m.value("total_exit_pages"), sessions),
		"topLandingPage":         m.text("top_landing_page"),
		"topExitPage":            m.text("top_exit_page"),
	}
}

// Campaign derives the campaign KPIs.
func Campaign(m Metrics) Card {
	impressions := m.value("impressions")
	clicks := m.value("campaign_clicks")
	sessions := m.value("campaign_sessions")

	return Card{
		"impressions":       count(m, "impressions"),
		"campaignClicks":    count(m, "campaign_clicks"),
		"clickThroughRate":  percent(clicks, impressions),
		"conversionRate":    percent(m.value("campaign_conversion"), sessions),
		"engagementRate":    percent(m.value("engaged_users"), impressions),
		"bounceRate":        percent(m.value("campaign_single_page_sessions"), sessions),
		"avgSessionMinutes": minutes(m.value("campaign_session_duration"), sessions),
		"topCampaignSource": m.text("top_campaign_source"),
		"topCampaignMedium": m.text("top_campaign_medium"),
	}
}

func divide(num, den float64) (float64, bool) {
	if den == 0 {
		return 0, false
	}
	q := num / den
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0, false
	}
	return q, true
}

func per(num, den float64) any {
	q, ok := divide(num, den)
	if !ok {
		return nil
	}
	return round2(q)
}

func percent(num, den float64) any {
	return unit(num*100, den, "%")
}

// minutes converts a millisecond total into an average in minutes.
func minutes(totalMs, den float64) any {
	return unit(totalMs/60000, den, "mins")
}

func unit(num, den float64, suffix string) any {
	q, ok := divide(num, den)
	if !ok {
		return nil
	}
	if suffix == "%" {
		return format(round2(q)) + suffix
	}
	return format(round2(q)) + " " + suffix
}

func count(m Metrics, name string) any {
	if !m.has(name) {
		return nil
	}
	return m.value(name)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
