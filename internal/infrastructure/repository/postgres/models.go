package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/sabiscore/predictor/internal/domain/fixture"
	"github.com/sabiscore/predictor/internal/domain/ingestion"
	"github.com/sabiscore/predictor/internal/domain/prediction"
	"github.com/sabiscore/predictor/internal/domain/team"
)

type teamTableModel struct {
	ID              int64           `db:"id"`
	LeagueID        int64           `db:"league_id"`
	Name            string          `db:"name"`
	RecentForm      json.RawMessage `db:"recent_form"`
	VenueHomePlayed int             `db:"venue_home_played"`
	VenueHomeWins   int             `db:"venue_home_wins"`
	VenueAwayPlayed int             `db:"venue_away_played"`
	VenueAwayWins   int             `db:"venue_away_wins"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func teamFromRow(row teamTableModel) (team.Team, error) {
	out := team.Team{
		ID:       row.ID,
		LeagueID: row.LeagueID,
		Name:     row.Name,
		Venue: team.VenueStats{
			HomePlayed: row.VenueHomePlayed,
			HomeWins:   row.VenueHomeWins,
			AwayPlayed: row.VenueAwayPlayed,
			AwayWins:   row.VenueAwayWins,
		},
	}
	if len(row.RecentForm) > 0 {
		if err := sonic.Unmarshal(row.RecentForm, &out.RecentForm); err != nil {
			return team.Team{}, fmt.Errorf("decode recent form for team %d: %w", row.ID, err)
		}
	}
	return out, nil
}

func teamToRow(item team.Team, now time.Time) (teamTableModel, error) {
	recentForm, err := sonic.Marshal(item.RecentForm)
	if err != nil {
		return teamTableModel{}, fmt.Errorf("encode recent form for team %d: %w", item.ID, err)
	}

	return teamTableModel{
		ID:              item.ID,
		LeagueID:        item.LeagueID,
		Name:            item.Name,
		RecentForm:      recentForm,
		VenueHomePlayed: item.Venue.HomePlayed,
		VenueHomeWins:   item.Venue.HomeWins,
		VenueAwayPlayed: item.Venue.AwayPlayed,
		VenueAwayWins:   item.Venue.AwayWins,
		UpdatedAt:       now,
	}, nil
}

type fixtureTableModel struct {
	ID         int64         `db:"id"`
	LeagueID   int64         `db:"league_id"`
	HomeTeamID int64         `db:"home_team_id"`
	AwayTeamID int64         `db:"away_team_id"`
	HomeTeam   string        `db:"home_team"`
	AwayTeam   string        `db:"away_team"`
	KickoffAt  time.Time     `db:"kickoff_at"`
	Status     string        `db:"status"`
	HomeScore  sql.NullInt32 `db:"home_score"`
	AwayScore  sql.NullInt32 `db:"away_score"`
	UpdatedAt  time.Time     `db:"updated_at"`
}

func fixtureFromRow(row fixtureTableModel) fixture.Fixture {
	out := fixture.Fixture{
		ID:         row.ID,
		LeagueID:   row.LeagueID,
		HomeTeamID: row.HomeTeamID,
		AwayTeamID: row.AwayTeamID,
		HomeTeam:   row.HomeTeam,
		AwayTeam:   row.AwayTeam,
		KickoffAt:  row.KickoffAt.UTC(),
		Status:     row.Status,
	}
	if row.HomeScore.Valid {
		score := int(row.HomeScore.Int32)
		out.HomeScore = &score
	}
	if row.AwayScore.Valid {
		score := int(row.AwayScore.Int32)
		out.AwayScore = &score
	}
	return out
}

func fixtureToRow(item fixture.Fixture, now time.Time) fixtureTableModel {
	row := fixtureTableModel{
		ID:         item.ID,
		LeagueID:   item.LeagueID,
		HomeTeamID: item.HomeTeamID,
		AwayTeamID: item.AwayTeamID,
		HomeTeam:   item.HomeTeam,
		AwayTeam:   item.AwayTeam,
		KickoffAt:  item.KickoffAt.UTC(),
		Status:     item.Status,
		UpdatedAt:  now,
	}
	if item.HomeScore != nil {
		row.HomeScore = sql.NullInt32{Int32: int32(*item.HomeScore), Valid: true}
	}
	if item.AwayScore != nil {
		row.AwayScore = sql.NullInt32{Int32: int32(*item.AwayScore), Valid: true}
	}
	return row
}

type predictionTableModel struct {
	FixtureID   int64           `db:"fixture_id"`
	ProbHome    float64         `db:"prob_home"`
	ProbDraw    float64         `db:"prob_draw"`
	ProbAway    float64         `db:"prob_away"`
	XGHome      float64         `db:"xg_home"`
	XGAway      float64         `db:"xg_away"`
	Outcome     string          `db:"outcome"`
	Confidence  string          `db:"confidence"`
	ModelSource string          `db:"model_source"`
	Factors     json.RawMessage `db:"factors"`
	Over25      float64         `db:"over_2_5"`
	Under25     float64         `db:"under_2_5"`
	BTTS        float64         `db:"btts"`
	DataQuality float64         `db:"data_quality"`
	CreatedAt   time.Time       `db:"created_at"`
	StaleAfter  time.Time       `db:"stale_after"`
}

func predictionFromRow(row predictionTableModel) (prediction.Prediction, error) {
	out := prediction.Prediction{
		FixtureID:     row.FixtureID,
		Probabilities: prediction.Probabilities{Home: row.ProbHome, Draw: row.ProbDraw, Away: row.ProbAway},
		ExpectedGoals: prediction.ExpectedGoals{Home: row.XGHome, Away: row.XGAway},
		Outcome:       row.Outcome,
		Confidence:    row.Confidence,
		ModelSource:   row.ModelSource,
		Markets:       prediction.Markets{Over25: row.Over25, Under25: row.Under25, BothTeamScore: row.BTTS},
		DataQuality:   row.DataQuality,
		CreatedAt:     row.CreatedAt.UTC(),
		StaleAfter:    row.StaleAfter.UTC(),
	}
	if len(row.Factors) > 0 {
		if err := sonic.Unmarshal(row.Factors, &out.Factors); err != nil {
			return prediction.Prediction{}, fmt.Errorf("decode factors for fixture %d: %w", row.FixtureID, err)
		}
	}
	return out, nil
}

func predictionToRow(item prediction.Prediction) (predictionTableModel, error) {
	factors, err := sonic.Marshal(item.Factors)
	if err != nil {
		return predictionTableModel{}, fmt.Errorf("encode factors for fixture %d: %w", item.FixtureID, err)
	}

	return predictionTableModel{
		FixtureID:   item.FixtureID,
		ProbHome:    item.Probabilities.Home,
		ProbDraw:    item.Probabilities.Draw,
		ProbAway:    item.Probabilities.Away,
		XGHome:      item.ExpectedGoals.Home,
		XGAway:      item.ExpectedGoals.Away,
		Outcome:     item.Outcome,
		Confidence:  item.Confidence,
		ModelSource: item.ModelSource,
		Factors:     factors,
		Over25:      item.Markets.Over25,
		Under25:     item.Markets.Under25,
		BTTS:        item.Markets.BothTeamScore,
		DataQuality: item.DataQuality,
		CreatedAt:   item.CreatedAt.UTC(),
		StaleAfter:  item.StaleAfter.UTC(),
	}, nil
}

type ingestionEventTableModel struct {
	ID             string          `db:"id"`
	Source         string          `db:"source"`
	Scope          string          `db:"scope"`
	Status         string          `db:"status"`
	StartedAt      time.Time       `db:"started_at"`
	DurationMs     int64           `db:"duration_ms"`
	RecordsWritten int             `db:"records_written"`
	UsedFallback   bool            `db:"used_fallback"`
	ErrorMessage   sql.NullString  `db:"error_message"`
	Metadata       json.RawMessage `db:"metadata"`
}

func ingestionEventFromRow(row ingestionEventTableModel) (ingestion.Event, error) {
	out := ingestion.Event{
		ID:             row.ID,
		Source:         row.Source,
		Scope:          row.Scope,
		Status:         row.Status,
		StartedAt:      row.StartedAt.UTC(),
		DurationMs:     row.DurationMs,
		RecordsWritten: row.RecordsWritten,
		UsedFallback:   row.UsedFallback,
	}
	if row.ErrorMessage.Valid {
		out.ErrorMessage = row.ErrorMessage.String
	}
	if len(row.Metadata) > 0 {
		if err := sonic.Unmarshal(row.Metadata, &out.Metadata); err != nil {
			return ingestion.Event{}, fmt.Errorf("decode metadata for event %s: %w", row.ID, err)
		}
	}
	return out, nil
}

func ingestionEventToRow(event ingestion.Event) (ingestionEventTableModel, error) {
	metadata, err := sonic.Marshal(event.Metadata)
	if err != nil {
		return ingestionEventTableModel{}, fmt.Errorf("encode metadata for event %s: %w", event.ID, err)
	}

	row := ingestionEventTableModel{
		ID:             event.ID,
		Source:         event.Source,
		Scope:          event.Scope,
		Status:         event.Status,
		StartedAt:      event.StartedAt.UTC(),
		DurationMs:     event.DurationMs,
		RecordsWritten: event.RecordsWritten,
		UsedFallback:   event.UsedFallback,
		Metadata:       metadata,
	}
	if event.ErrorMessage != "" {
		row.ErrorMessage = sql.NullString{String: event.ErrorMessage, Valid: true}
	}
	return row, nil
}
