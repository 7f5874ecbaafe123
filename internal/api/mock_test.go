package api

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/mayuresh141/urbanhcf/internal/model"
	"github.com/mayuresh141/urbanhcf/internal/pipeline"
	"github.com/mayuresh141/urbanhcf/pkg/geocode"
)

// --- RunService Mock ---

type mockRuns struct {
	mock.Mock
}

func (m *mockRuns) Run(ctx context.Context, req pipeline.Request) (string, *model.AnalysisResult, error) {
	args := m.Called(ctx, req)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*model.AnalysisResult), args.Error(2)
}

func (m *mockRuns) Load(ctx context.Context, runID string) (*model.AnalysisResult, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AnalysisResult), args.Error(1)
}

// --- Pinger Mock ---

type mockPinger struct {
	mock.Mock
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.Called(ctx).Error(0) }

// --- Geocoder Mock ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, name string) (*geocode.Result, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}
