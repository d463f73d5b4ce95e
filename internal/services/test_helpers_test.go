package services

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/table"
)

// MockLoader is a mock storage.Loader
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) Load(ctx context.Context, bucket, blob string) (*table.Table, error) {
	args := m.Called(ctx, bucket, blob)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*table.Table), args.Error(1)
}

// MockRefresher is a mock for the websocket hub's refresh broadcast
type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) BroadcastRefresh(source string, components []string) {
	m.Called(source, components)
}

// MockChecker is a mock ReadinessChecker
type MockChecker struct {
	mock.Mock
}

func (m *MockChecker) Check(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type staticHub int

func (h staticHub) ClientCount() int { return int(h) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const predictionsCSV = `player,position,comp,squad,country,market_value_euro_mill,RandomForestRegressor
Kylian Mbappe,FW,Ligue 1,Paris S-G,FRA,180,171.456
Erling Haaland,FW,Premier League,Manchester City,NOR,170,160.004
Vinicius Junior,FW,La Liga,Real Madrid,BRA,120,125.555
Bukayo Saka,FW,Premier League,Arsenal,ENG,110,98.321
Rafael Leao,FW,Serie A,Milan,POR,90,
Jude Bellingham,MF,La Liga,Real Madrid,ENG,120,110.5
Phil Foden,MF,Premier League,Manchester City,ENG,110,101.239
`

func predictionsTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader(predictionsCSV))
	require.NoError(t, err)
	return tbl
}
