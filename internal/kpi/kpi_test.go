package kpi

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seuros/scalex/internal/chart"
)

func num(v float64) *float64 { return &v }
func str(s string) *string   { return &s }

func TestBusinessFromSample(t *testing.T) {
	m, err := Sample()
	require.NoError(t, err)

	card := Business(m)
	assert.Len(t, card, 17)
	assert.Equal(t, "4.12%", card["clickThroughRate"])
	assert.Equal(t, "56.93%", card["bounceRate"])
	assert.Equal(t, "2.41 mins", card["avgSessionMinutes"])
	assert.Equal(t, "1.12 mins", card["avgTimeOnPageMinutes"])
	assert.Equal(t, 3.18, card["pagesPerSession"])
	assert.Equal(t, 1.74, card["eventEngagementRate"])
	assert.Equal(t, "5993.6 ms", card["avgPageLoadMs"])
	assert.Equal(t, "0.86%", card["formSubmissionRate"])
	assert.Equal(t, 2.73, card["avgInteractionsPerUser"])
	assert.Equal(t, 1840.0, card["engagedUsers"])
	assert.Equal(t, "47.36%", card["avgScrollDepth"])
	assert.Equal(t, "38.4%", card["exitRate"])
	assert.Equal(t, "India", card["topEngagedCountry"])
	assert.Equal(t, "Assam", card["topEngagedRegion"])
	assert.Equal(t, "Guwahati", card["topEngagedCity"])
	assert.Equal(t, "/pricing", card["topLandingPage"])
	assert.Equal(t, "/checkout", card["topExitPage"])
}

func TestCampaignFromSample(t *testing.T) {
	m, err := Sample()
	require.NoError(t, err)

	card := Campaign(m)
	assert.Len(t, card, 9)
	assert.Equal(t, 184000.0, card["impressions"])
	assert.Equal(t, 7360.0, card["campaignClicks"])
	assert.Equal(t, "4%", card["clickThroughRate"])
	assert.Equal(t, "3.2%", card["conversionRate"])
	assert.Equal(t, "1%", card["engagementRate"])
	assert.Equal(t, "44.8%", card["bounceRate"])
	assert.Equal(t, "3.05 mins", card["avgSessionMinutes"])
	assert.Equal(t, "google", card["topCampaignSource"])
	assert.Equal(t, "cpc", card["topCampaignMedium"])
}

func TestCardsWithoutRows(t *testing.T) {
	business := Business(Metrics{})
	for _, key := range []string{"clickThroughRate", "bounceRate", "avgSessionMinutes", "pagesPerSession", "avgPageLoadMs", "exitRate", "engagedUsers"} {
		assert.Nil(t, business[key], key)
	}
	assert.Equal(t, NotAvailable, business["topEngagedCountry"])
	assert.Equal(t, NotAvailable, business["topExitPage"])
	assert.Equal(t, "0%", business["avgScrollDepth"])

	campaign := Campaign(Metrics{})
	assert.Nil(t, campaign["impressions"])
	assert.Nil(t, campaign["clickThroughRate"])
	assert.Equal(t, NotAvailable, campaign["topCampaignMedium"])
}

func TestZeroDenominatorIsNull(t *testing.T) {
	m := FromRows([]Metric{
		{Name: "total_sessions", Value: num(0)},
		{Name: "total_page_views", Value: num(120)},
		{Name: "total_clicks", Value: num(6)},
		{Name: "single_page_sessions", Value: num(3)},
		{Name: "most_engaged_country", Text: str("")},
	})

	card := Business(m)
	assert.Nil(t, card["bounceRate"])
	assert.Nil(t, card["pagesPerSession"])
	assert.Equal(t, "5%", card["clickThroughRate"])
	assert.Equal(t, NotAvailable, card["topEngagedCountry"])
}

func TestBuild(t *testing.T) {
	src := Static(FromRows([]Metric{{Name: "top_campaign_source", Text: str("linkedin")}}))

	card, err := Build(context.Background(), src, "campaign_kpis")
	require.NoError(t, err)
	assert.Equal(t, "linkedin", card["topCampaignSource"])

	_, err = Build(context.Background(), src, chart.ID("kpi_roas"))
	assert.Error(t, err)

	_, err = Build(context.Background(), failingSource{}, "business_kpis")
	assert.ErrorIs(t, err, assert.AnError)
}

type failingSource struct{}

func (failingSource) Metrics(context.Context) (Metrics, error) { return nil, assert.AnError }

func TestStaticReturnsCopy(t *testing.T) {
	src := Static(FromRows([]Metric{{Name: "impressions", Value: num(10)}}))
	m, err := src.Metrics(context.Background())
	require.NoError(t, err)
	delete(m, "impressions")

	again, _ := src.Metrics(context.Background())
	assert.Contains(t, again, "impressions")
}

func TestParseMetrics(t *testing.T) {
	m, err := ParseMetrics([]byte(`
- name: impressions
  value: 50
- name: top_campaign_medium
  text: email
- name: impressions
  value: 60
`))
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Equal(t, 60.0, *m["impressions"].Value)
	assert.Len(t, m.Rows(), 2)

	_, err = ParseMetrics([]byte(`- value: 1`))
	assert.ErrorContains(t, err, "no name")

	_, err = ParseMetrics([]byte(`{not: [a list`))
	assert.Error(t, err)
}

func TestLoadMetrics(t *testing.T) {
	m, err := LoadMetrics("")
	require.NoError(t, err)
	assert.Contains(t, m, "total_sessions")

	path := filepath.Join(t.TempDir(), "metrics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- name: campaign_clicks\n  value: 3\n"), 0o644))
	m, err = LoadMetrics(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, *m["campaign_clicks"].Value)

	_, err = LoadMetrics(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
