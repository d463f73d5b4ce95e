package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"valuepulse/internal/config"
	"valuepulse/internal/infrastructure"
	"valuepulse/internal/storage"
	"valuepulse/internal/table"
)

// DefaultPredictionLimit is used when a query does not set a limit
const DefaultPredictionLimit = 10

const predictionsKey = "predictions"

// Columns of the predictions table
const (
	colPlayer      = "player"
	colPosition    = "position"
	colLeague      = "comp"
	colTeam        = "squad"
	colCountry     = "country"
	colMarketValue = "market_value_euro_mill"
)

// PredictionColumns are the accepted names of the model output column, in
// order of preference
var PredictionColumns = []string{"prediction", "RandomForestRegressor"}

// Prediction is one player's predicted market value
type Prediction struct {
	Player      string  `json:"player"`
	Position    string  `json:"position"`
	League      string  `json:"league"`
	Team        string  `json:"team"`
	Country     string  `json:"country"`
	MarketValue float64 `json:"market_value"`
	Prediction  float64 `json:"prediction"`
}

// PredictionQuery filters predictions. Empty fields match anything.
type PredictionQuery struct {
	League   string `json:"league,omitempty" validate:"omitempty,max=100"`
	Position string `json:"position,omitempty" validate:"omitempty,max=50"`
	Country  string `json:"country,omitempty" validate:"omitempty,max=100"`
	Limit    int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

func (q PredictionQuery) matches(p Prediction) bool {
	return (q.League == "" || q.League == p.League) &&
		(q.Position == "" || q.Position == p.Position) &&
		(q.Country == "" || q.Country == p.Country)
}

// Dropdowns lists the distinct filter values available to clients
type Dropdowns struct {
	Positions []string `json:"positions"`
	Leagues   []string `json:"leagues"`
	Countries []string `json:"countries"`
}

type predictionSet struct {
	// rows are sorted by prediction, highest first
	rows      []Prediction
	dropdowns Dropdowns
	loadedAt  time.Time
}

// PredictionService serves precomputed predictions from storage. The table
// is loaded on first use and reloaded once its cache entry expires.
type PredictionService struct {
	loader storage.Loader
	bucket string
	blob   string
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	cached *predictionSet
	// generation changes on Invalidate; loads started before it are not cached
	generation uint64
	group      singleflight.Group
}

// NewPredictionService creates a prediction service reading from loader
func NewPredictionService(loader storage.Loader, cfg config.PredictionsConfig, logger *slog.Logger) *PredictionService {
	if logger == nil {
		logger = slog.Default()
	}
	bucket, blob := cfg.Bucket, cfg.Blob
	if bucket == "" {
		bucket = storage.BucketPredictions
	}
	if blob == "" {
		blob = "attacking_predictions.csv"
	}
	return &PredictionService{
		loader: loader,
		bucket: bucket,
		blob:   blob,
		ttl:    cfg.CacheTTL,
		logger: logger.With(slog.String("service", "predictions")),
		now:    time.Now,
	}
}

// Predict returns up to query.Limit predictions matching the query, highest
// predicted value first
func (s *PredictionService) Predict(ctx context.Context, query PredictionQuery) ([]Prediction, error) {
	if query.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	limit := query.Limit
	if limit == 0 {
		limit = DefaultPredictionLimit
	}

	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Prediction, 0, min(limit, len(set.rows)))
	for _, p := range set.rows {
		if len(out) == limit {
			break
		}
		if query.matches(p) {
			out = append(out, p)
		}
	}

	infrastructure.SetSpanAttributes(ctx, map[string]interface{}{
		"predictions.league":   query.League,
		"predictions.position": query.Position,
		"predictions.country":  query.Country,
		"predictions.count":    len(out),
	})
	s.logger.DebugContext(ctx, "predictions served",
		slog.String("league", query.League),
		slog.String("position", query.Position),
		slog.String("country", query.Country),
		slog.Int("count", len(out)))
	return out, nil
}

// Dropdowns returns the distinct leagues, positions and countries
func (s *PredictionService) Dropdowns(ctx context.Context) (Dropdowns, error) {
	set, err := s.load(ctx)
	if err != nil {
		return Dropdowns{}, err
	}
	d := set.dropdowns
	return Dropdowns{
		Positions: append([]string{}, d.Positions...),
		Leagues:   append([]string{}, d.Leagues...),
		Countries: append([]string{}, d.Countries...),
	}, nil
}

// Player returns the prediction for one player, matched case-insensitively
func (s *PredictionService) Player(ctx context.Context, name string) (Prediction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Prediction{}, fmt.Errorf("%w: player is required", ErrInvalidInput)
	}
	set, err := s.load(ctx)
	if err != nil {
		return Prediction{}, err
	}
	for _, p := range set.rows {
		if strings.EqualFold(p.Player, name) {
			return p, nil
		}
	}
	return Prediction{}, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
}

// Team returns every prediction for one team, highest first
func (s *PredictionService) Team(ctx context.Context, team string) ([]Prediction, error) {
	if strings.TrimSpace(team) == "" {
		return nil, fmt.Errorf("%w: team is required", ErrInvalidInput)
	}
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := []Prediction{}
	for _, p := range set.rows {
		if strings.EqualFold(p.Team, team) {
			out = append(out, p)
		}
	}
	return out, nil
}

// TeamValuation sums a team's player values and predictions
type TeamValuation struct {
	Team        string  `json:"team"`
	League      string  `json:"league"`
	Players     int     `json:"players"`
	MarketValue float64 `json:"market_value"`
	Prediction  float64 `json:"prediction"`
}

// League ranks the teams of one league by their summed prediction and
// returns at most limit of them
func (s *PredictionService) League(ctx context.Context, league string, limit int) ([]TeamValuation, error) {
	if strings.TrimSpace(league) == "" {
		return nil, fmt.Errorf("%w: league is required", ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if limit == 0 {
		limit = DefaultPredictionLimit
	}
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	byTeam := map[string]*TeamValuation{}
	var order []string
	for _, p := range set.rows {
		if !strings.EqualFold(p.League, league) {
			continue
		}
		tv, ok := byTeam[p.Team]
		if !ok {
			tv = &TeamValuation{Team: p.Team, League: p.League}
			byTeam[p.Team] = tv
			order = append(order, p.Team)
		}
		tv.Players++
		tv.MarketValue += p.MarketValue
		tv.Prediction += p.Prediction
	}

	out := make([]TeamValuation, 0, len(order))
	for _, team := range order {
		tv := byTeam[team]
		tv.MarketValue = round2(tv.MarketValue)
		tv.Prediction = round2(tv.Prediction)
		out = append(out, *tv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Prediction > out[j].Prediction })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Check loads the predictions if needed and reports whether they are usable
func (s *PredictionService) Check(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Invalidate drops the cached table so the next request reloads it
func (s *PredictionService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.generation++
	s.mu.Unlock()
	s.group.Forget(predictionsKey)
	s.logger.Info("predictions cache invalidated")
}

// LoadedAt returns when the cached table was loaded, or the zero time
func (s *PredictionService) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return time.Time{}
	}
	return s.cached.loadedAt
}

func (s *PredictionService) fresh() *predictionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(s.cached.loadedAt) > s.ttl {
		return nil
	}
	return s.cached
}

func (s *PredictionService) load(ctx context.Context) (*predictionSet, error) {
	if set := s.fresh(); set != nil {
		return set, nil
	}
	// concurrent misses share one load; it must outlive the first caller
	ch := s.group.DoChan(predictionsKey, func() (interface{}, error) {
		return s.reload(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*predictionSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *PredictionService) reload(ctx context.Context) (*predictionSet, error) {
	start := s.now()
	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	t, err := s.loader.Load(ctx, s.bucket, s.blob)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "failed to load predictions",
			slog.String("bucket", s.bucket),
			slog.String("blob", s.blob),
			slog.String("error", err.Error()))
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s/%s not found", ErrPredictionsUnavailable, s.bucket, s.blob)
		}
		return nil, fmt.Errorf("%w: %v", ErrPredictionsUnavailable, err)
	}

	set, err := buildPredictionSet(t)
	if err != nil {
		return nil, err
	}
	set.loadedAt = s.now()

	s.mu.Lock()
	current := s.generation == generation
	if current {
		s.cached = set
	}
	s.mu.Unlock()
	if !current {
		s.logger.InfoContext(ctx, "discarding predictions loaded before invalidation")
		return set, nil
	}

	infrastructure.AddSpanEvent(ctx, "predictions.loaded", map[string]interface{}{
		"bucket": s.bucket,
		"blob":   s.blob,
		"rows":   len(set.rows),
	})
	s.logger.InfoContext(ctx, "predictions loaded",
		slog.Int("rows", len(set.rows)),
		slog.Duration("duration", s.now().Sub(start)))
	return set, nil
}

func predictionColumn(t *table.Table) (string, bool) {
	for _, name := range PredictionColumns {
		if t.HasColumn(name) {
			return name, true
		}
	}
	return "", false
}

func buildPredictionSet(t *table.Table) (*predictionSet, error) {
	predCol, ok := predictionColumn(t)
	if !ok {
		return nil, fmt.Errorf("%w: no prediction column (want one of %v)", ErrInvalidPredictions, PredictionColumns)
	}
	if err := t.Require(colPlayer, colPosition, colLeague, colTeam, colCountry, colMarketValue); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredictions, err)
	}
	sorted, err := t.SortBy(predCol, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredictions, err)
	}

	set := &predictionSet{rows: make([]Prediction, 0, sorted.Len())}
	for i := range sorted.Len() {
		row := sorted.RowAt(i)
		pred, ok := row.Float(predCol)
		if !ok {
			// rows without a prediction cannot be ranked
			continue
		}
		value, _ := row.Float(colMarketValue)
		set.rows = append(set.rows, Prediction{
			Player:      row.String(colPlayer),
			Position:    row.String(colPosition),
			League:      row.String(colLeague),
			Team:        row.String(colTeam),
			Country:     row.String(colCountry),
			MarketValue: value,
			Prediction:  round2(pred),
		})
	}

	if set.dropdowns.Leagues, err = uniqueStrings(t, colLeague); err != nil {
		return nil, err
	}
	if set.dropdowns.Positions, err = uniqueStrings(t, colPosition); err != nil {
		return nil, err
	}
	if set.dropdowns.Countries, err = uniqueStrings(t, colCountry); err != nil {
		return nil, err
	}
	return set, nil
}

func uniqueStrings(t *table.Table, name string) ([]string, error) {
	values, err := t.Unique(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPredictions, err)
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, table.ToString(v))
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
