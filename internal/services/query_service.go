package services

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rhoci/rhoci/internal/api"
	"github.com/rhoci/rhoci/internal/models"
)

// BuildReader defines the read-side storage operations the query API needs.
type BuildReader interface {
	ListBuilds(ctx context.Context, job string, limit int) ([]models.BuildRecord, error)
	GetBuild(ctx context.Context, key models.BuildKey) (models.BuildRecord, bool, error)
	ListTests(ctx context.Context, key models.BuildKey) ([]models.Test, error)
	ListMatches(ctx context.Context, key models.BuildKey) ([]models.FailureMatch, error)
	TopFailingTests(ctx context.Context, job string, limit int) ([]models.TestFailureStat, error)
	UniqueTests(ctx context.Context, job string, limit int) ([]models.UniqueTest, error)
	ListSignatures(ctx context.Context) ([]models.FailureSignature, error)
	FindSignature(ctx context.Context, name string) (models.FailureSignature, bool, error)
	ListSquads(ctx context.Context) ([]models.Squad, error)
	CountByState(ctx context.Context) (map[models.IngestState]int, error)
}

// ReportLocator builds Jenkins report links for builds that are not ingested yet.
type ReportLocator interface {
	ReportURL(job string, number int) string
}

// QueryService implements the gRPC query API over the build store.
type QueryService struct {
	logger  *slog.Logger
	reader  BuildReader
	locator ReportLocator
}

var _ api.QueryServer = (*QueryService)(nil)

// NewQueryService constructs the query service facade.
func NewQueryService(logger *slog.Logger, reader BuildReader, locator ReportLocator) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{logger: logger, reader: reader, locator: locator}
}

// ListBuilds returns the most recently discovered builds, optionally for one job.
func (s *QueryService) ListBuilds(ctx context.Context, req *api.ListBuildsRequest) (*api.ListBuildsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit cannot be negative")
	}

	records, err := s.reader.ListBuilds(ctx, req.Job, req.Limit)
	if err != nil {
		s.logger.Error("list builds failed", slog.String("job", req.Job), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list builds")
	}

	resp := &api.ListBuildsResponse{Builds: make([]api.Build, 0, len(records))}
	for _, rec := range records {
		resp.Builds = append(resp.Builds, api.ToBuild(rec))
	}
	return resp, nil
}

// GetBuildTests returns the tests of an ingested build, or a link to the Jenkins test report
// when the build has not been ingested.
func (s *QueryService) GetBuildTests(ctx context.Context, req *api.BuildRequest) (*api.GetBuildTestsResponse, error) {
	key, err := api.FromBuildRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, ok, err := s.reader.GetBuild(ctx, key)
	if err != nil {
		s.logger.Error("get build failed", slog.String("build", key.String()), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to get build")
	}
	if !ok || rec.State != models.StateComplete {
		resp := &api.GetBuildTestsResponse{ReportURL: s.reportURL(key)}
		if ok {
			b := api.ToBuild(rec)
			resp.Build = &b
		}
		return resp, nil
	}

	tests, err := s.reader.ListTests(ctx, key)
	if err != nil {
		s.logger.Error("list tests failed", slog.String("build", key.String()), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list tests")
	}
	b := api.ToBuild(rec)
	return &api.GetBuildTestsResponse{
		Ingested:  true,
		Build:     &b,
		Tests:     api.ToTests(tests),
		ReportURL: rec.ReportURL,
	}, nil
}

func (s *QueryService) reportURL(key models.BuildKey) string {
	if s.locator == nil {
		return ""
	}
	return s.locator.ReportURL(key.Job, key.Number)
}

// ListFailureMatches returns the classified failures of one build.
func (s *QueryService) ListFailureMatches(ctx context.Context, req *api.BuildRequest) (*api.ListFailureMatchesResponse, error) {
	key, err := api.FromBuildRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	_, ok, err := s.reader.GetBuild(ctx, key)
	if err != nil {
		s.logger.Error("get build failed", slog.String("build", key.String()), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to get build")
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "build %s not found", key)
	}

	matches, err := s.reader.ListMatches(ctx, key)
	if err != nil {
		s.logger.Error("list matches failed", slog.String("build", key.String()), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list failure matches")
	}
	return &api.ListFailureMatchesResponse{Matches: api.ToFailureMatches(matches)}, nil
}

// TopFailingTests ranks tests by failure count.
func (s *QueryService) TopFailingTests(ctx context.Context, req *api.TopFailingTestsRequest) (*api.TopFailingTestsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit cannot be negative")
	}

	stats, err := s.reader.TopFailingTests(ctx, req.Job, req.Limit)
	if err != nil {
		s.logger.Error("top failing tests failed", slog.String("job", req.Job), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to rank failing tests")
	}
	return &api.TopFailingTestsResponse{Tests: api.ToTestStats(stats)}, nil
}

// ListUniqueTests lists the distinct test cases seen across ingested builds.
func (s *QueryService) ListUniqueTests(ctx context.Context, req *api.ListUniqueTestsRequest) (*api.ListUniqueTestsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit cannot be negative")
	}

	tests, err := s.reader.UniqueTests(ctx, req.Job, req.Limit)
	if err != nil {
		s.logger.Error("list unique tests failed", slog.String("job", req.Job), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list unique tests")
	}
	return &api.ListUniqueTestsResponse{Tests: api.ToUniqueTests(tests)}, nil
}

// ListSignatures returns the stored catalog, or one signature when a name is given.
func (s *QueryService) ListSignatures(ctx context.Context, req *api.ListSignaturesRequest) (*api.ListSignaturesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}

	if req.Name != "" {
		sig, ok, err := s.reader.FindSignature(ctx, req.Name)
		if err != nil {
			s.logger.Error("find signature failed", slog.String("name", req.Name), slog.Any("error", err))
			return nil, status.Error(codes.Internal, "failed to get signature")
		}
		if !ok {
			return nil, status.Errorf(codes.NotFound, "signature %s not found", req.Name)
		}
		return &api.ListSignaturesResponse{Signatures: api.ToSignatures([]models.FailureSignature{sig})}, nil
	}

	sigs, err := s.reader.ListSignatures(ctx)
	if err != nil {
		s.logger.Error("list signatures failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list signatures")
	}
	return &api.ListSignaturesResponse{Signatures: api.ToSignatures(sigs)}, nil
}

// ListSquads returns the stored squads with their DFG.
func (s *QueryService) ListSquads(ctx context.Context, _ *api.ListSquadsRequest) (*api.ListSquadsResponse, error) {
	squads, err := s.reader.ListSquads(ctx)
	if err != nil {
		s.logger.Error("list squads failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to list squads")
	}
	return &api.ListSquadsResponse{Squads: api.ToSquads(squads)}, nil
}

// IngestStatus reports how many builds sit in each ingestion state.
func (s *QueryService) IngestStatus(ctx context.Context, _ *api.IngestStatusRequest) (*api.IngestStatusResponse, error) {
	counts, err := s.reader.CountByState(ctx)
	if err != nil {
		s.logger.Error("count builds failed", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to count builds")
	}
	return api.ToIngestStatus(counts), nil
}
