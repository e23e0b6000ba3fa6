package sportsdata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/sabiscore/predictor/internal/usecase"
)

// Typed accessors over Request. Parsing skips malformed records instead of
// failing the whole payload; a provider occasionally ships partial rows and
// one broken fixture must not sink a sync cycle.

var _ usecase.SportsDataProvider = (*Client)(nil)

func (c *Client) FetchUpcomingFixtures(ctx context.Context, leagueID int64, limit int) ([]usecase.ExternalFixture, usecase.ProviderMeta, error) {
	if limit <= 0 {
		limit = 5
	}
	raw, meta, err := c.Request(ctx, "fixtures/upcoming", map[string]string{
		"league": strconv.FormatInt(leagueID, 10),
		"limit":  strconv.Itoa(limit),
	})
	if err != nil {
		return nil, meta, err
	}

	var envelope fixtureEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, meta, fmt.Errorf("decode upcoming fixtures: %w", err)
	}

	fixtures := make([]usecase.ExternalFixture, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		converted, ok := convertFixture(item)
		if !ok {
			c.logger.WarnContext(ctx, "skipping malformed fixture record", "fixture_id", item.ID, "league_id", leagueID)
			continue
		}
		fixtures = append(fixtures, converted)
	}
	return fixtures, meta, nil
}

func (c *Client) FetchFixture(ctx context.Context, fixtureID int64) (usecase.ExternalFixture, usecase.ProviderMeta, error) {
	endpoint := fmt.Sprintf("fixtures/%d", fixtureID)

	// Ids in the synthetic range have no upstream record. The synthesizer
	// is their system of record, so they never read as missing and never
	// cost a network round trip.
	if fixtureID >= syntheticIDFloor {
		meta := usecase.ProviderMeta{Source: usecase.PayloadSourceSynthetic, UsedFallback: true}
		return decodeSingleFixture(c.synth.Payload(endpoint, nil), fixtureID, meta)
	}

	raw, meta, err := c.Request(ctx, endpoint, nil)
	if err != nil {
		return usecase.ExternalFixture{}, meta, err
	}
	return decodeSingleFixture(raw, fixtureID, meta)
}

func decodeSingleFixture(raw []byte, fixtureID int64, meta usecase.ProviderMeta) (usecase.ExternalFixture, usecase.ProviderMeta, error) {
	var envelope fixtureEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return usecase.ExternalFixture{}, meta, fmt.Errorf("decode fixture %d: %w", fixtureID, err)
	}
	if len(envelope.Data) == 0 {
		return usecase.ExternalFixture{}, meta, fmt.Errorf("fixture %d: %w", fixtureID, usecase.ErrNotFound)
	}

	converted, ok := convertFixture(envelope.Data[0])
	if !ok {
		return usecase.ExternalFixture{}, meta, fmt.Errorf("fixture %d: malformed record", fixtureID)
	}
	return converted, meta, nil
}

func (c *Client) FetchTeam(ctx context.Context, teamID int64) (usecase.ExternalTeam, usecase.ProviderMeta, error) {
	raw, meta, err := c.Request(ctx, fmt.Sprintf("teams/%d", teamID), nil)
	if err != nil {
		return usecase.ExternalTeam{}, meta, err
	}

	var envelope teamEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return usecase.ExternalTeam{}, meta, fmt.Errorf("decode team %d: %w", teamID, err)
	}
	if envelope.Data.ID == 0 {
		return usecase.ExternalTeam{}, meta, fmt.Errorf("team %d: %w", teamID, usecase.ErrNotFound)
	}

	return usecase.ExternalTeam{
		ExternalID: envelope.Data.ID,
		LeagueID:   envelope.Data.LeagueID,
		Name:       envelope.Data.Name,
	}, meta, nil
}

func (c *Client) FetchRecentResults(ctx context.Context, teamID int64, limit int) ([]usecase.ExternalResult, usecase.ProviderMeta, error) {
	if limit <= 0 {
		limit = 8
	}
	raw, meta, err := c.Request(ctx, fmt.Sprintf("teams/%d/results", teamID), map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, meta, err
	}

	results, err := c.decodeResults(ctx, raw, "recent results")
	return results, meta, err
}

func (c *Client) FetchHeadToHead(ctx context.Context, homeTeamID, awayTeamID int64, limit int) ([]usecase.ExternalResult, usecase.ProviderMeta, error) {
	if limit <= 0 {
		limit = 5
	}
	raw, meta, err := c.Request(ctx, fmt.Sprintf("h2h/%d/%d", homeTeamID, awayTeamID), map[string]string{
		"limit": strconv.Itoa(limit),
	})
	if err != nil {
		return nil, meta, err
	}

	results, err := c.decodeResults(ctx, raw, "head to head")
	return results, meta, err
}

func (c *Client) FetchInjuries(ctx context.Context, teamID int64) ([]usecase.ExternalInjury, usecase.ProviderMeta, error) {
	raw, meta, err := c.Request(ctx, fmt.Sprintf("teams/%d/injuries", teamID), nil)
	if err != nil {
		return nil, meta, err
	}

	var envelope injuryEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, meta, fmt.Errorf("decode injuries: %w", err)
	}

	injuries := make([]usecase.ExternalInjury, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		if item.Player == "" {
			continue
		}
		injuries = append(injuries, usecase.ExternalInjury{
			PlayerName: item.Player,
			Position:   item.Position,
			Severity:   item.Severity,
		})
	}
	return injuries, meta, nil
}

func (c *Client) FetchOdds(ctx context.Context, fixtureID int64) (*usecase.ExternalOdds, usecase.ProviderMeta, error) {
	raw, meta, err := c.Request(ctx, fmt.Sprintf("fixtures/%d/odds", fixtureID), nil)
	if err != nil {
		return nil, meta, err
	}

	var envelope oddsEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, meta, fmt.Errorf("decode odds: %w", err)
	}
	if envelope.Data == nil || envelope.Data.Home <= 1 || envelope.Data.Draw <= 1 || envelope.Data.Away <= 1 {
		// Odds at or below 1.0 are placeholder rows, not a priced market.
		return nil, meta, nil
	}

	return &usecase.ExternalOdds{
		Home: envelope.Data.Home,
		Draw: envelope.Data.Draw,
		Away: envelope.Data.Away,
	}, meta, nil
}

func (c *Client) FetchWeather(ctx context.Context, fixtureID int64) (*usecase.ExternalWeather, usecase.ProviderMeta, error) {
	raw, meta, err := c.Request(ctx, fmt.Sprintf("fixtures/%d/weather", fixtureID), nil)
	if err != nil {
		return nil, meta, err
	}

	var envelope weatherEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, meta, fmt.Errorf("decode weather: %w", err)
	}
	if envelope.Data == nil {
		return nil, meta, nil
	}

	return &usecase.ExternalWeather{
		TempCelsius:   envelope.Data.TempCelsius,
		WindKph:       envelope.Data.WindKph,
		Precipitation: envelope.Data.Precipitation,
	}, meta, nil
}

func (c *Client) decodeResults(ctx context.Context, raw []byte, kind string) ([]usecase.ExternalResult, error) {
	var envelope resultEnvelope
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}

	results := make([]usecase.ExternalResult, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		playedAt, ok := parseProviderTime(item.PlayedAt)
		if !ok || item.FixtureID == 0 || item.TeamID == 0 {
			c.logger.WarnContext(ctx, "skipping malformed result record", "kind", kind, "fixture_id", item.FixtureID)
			continue
		}
		results = append(results, usecase.ExternalResult{
			FixtureID:    item.FixtureID,
			TeamID:       item.TeamID,
			OpponentID:   item.OpponentID,
			GoalsFor:     item.GoalsFor,
			GoalsAgainst: item.GoalsAgainst,
			Home:         item.Home,
			PlayedAt:     playedAt,
		})
	}
	return results, nil
}

func convertFixture(item fixtureItem) (usecase.ExternalFixture, bool) {
	kickoffAt, ok := parseProviderTime(item.KickoffAt)
	if !ok || item.ID == 0 || item.HomeTeam.ID == 0 || item.AwayTeam.ID == 0 {
		return usecase.ExternalFixture{}, false
	}

	converted := usecase.ExternalFixture{
		ExternalID:   item.ID,
		LeagueID:     item.LeagueID,
		HomeTeamID:   item.HomeTeam.ID,
		AwayTeamID:   item.AwayTeam.ID,
		HomeTeamName: item.HomeTeam.Name,
		AwayTeamName: item.AwayTeam.Name,
		KickoffAt:    kickoffAt,
		Status:       item.Status,
	}
	if item.Scores != nil {
		home, away := item.Scores.Home, item.Scores.Away
		converted.HomeScore = &home
		converted.AwayScore = &away
	}
	return converted, true
}
