package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seo401b/new-Allert/internal/domain"
)

// MockExtractor is a mock implementation of domain.VisionExtractor
type MockExtractor struct {
	detections []domain.Detection
	errs       []error // Returned in order, one per call, before detections
	calls      int
}

func (m *MockExtractor) Extract(ctx context.Context, image domain.SourceImage) ([]domain.Detection, error) {
	m.calls++
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	return m.detections, nil
}

// MockRefiner is a mock implementation of domain.TextRefiner.
// With no reply configured it echoes the supplied names.
type MockRefiner struct {
	mu      sync.Mutex
	replies map[string][]string
	err     error
	calls   map[string]int
	seen    map[string][]string
}

func NewMockRefiner() *MockRefiner {
	return &MockRefiner{
		replies: make(map[string][]string),
		calls:   make(map[string]int),
		seen:    make(map[string][]string),
	}
}

func (m *MockRefiner) Refine(ctx context.Context, query string, names []string, desired int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[query]++
	m.seen[query] = slices.Clone(names)
	if m.err != nil {
		return nil, m.err
	}
	if reply, ok := m.replies[query]; ok {
		return reply, nil
	}
	return names, nil
}

// MockVerifier is a mock implementation of domain.PairVerifier
type MockVerifier struct {
	mu      sync.Mutex
	results map[string]bool
	errs    map[string]error
	calls   []string
	panics  bool
}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{
		results: make(map[string]bool),
		errs:    make(map[string]error),
	}
}

func (m *MockVerifier) SameProduct(ctx context.Context, base domain.SourceImage, candidateURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panics {
		panic("verifier exploded")
	}
	m.calls = append(m.calls, candidateURL)
	if err, ok := m.errs[candidateURL]; ok {
		return false, err
	}
	return m.results[candidateURL], nil
}

func (m *MockVerifier) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// MockSelector is a mock implementation of domain.CandidateSelector
type MockSelector struct {
	mu       sync.Mutex
	selected string
	err      error
	calls    int
	received [][]string
}

func (m *MockSelector) SelectBest(ctx context.Context, base domain.SourceImage, candidateURLs []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.received = append(m.received, slices.Clone(candidateURLs))
	if m.err != nil {
		return "", m.err
	}
	return m.selected, nil
}

func (m *MockSelector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockObserver records pipeline events
type MockObserver struct {
	mu            sync.Mutex
	detections    map[domain.ResolutionMethod]int
	collaborators map[string]int
	stages        map[string]int
}

func NewMockObserver() *MockObserver {
	return &MockObserver{
		detections:    make(map[domain.ResolutionMethod]int),
		collaborators: make(map[string]int),
		stages:        make(map[string]int),
	}
}

func (m *MockObserver) ObserveDetection(method domain.ResolutionMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections[method]++
}

func (m *MockObserver) ObserveCollaborator(collaborator, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collaborators[collaborator+"/"+outcome]++
}

func (m *MockObserver) ObserveStage(stage string, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

var testImage = domain.SourceImage{Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"}

var chocoCatalog = []domain.CatalogRow{
	{Position: 0, Name: "Choco Pie", ImageReference: "http://a.co/1.jpg"},
	{Position: 1, Name: "ChocoPie Mini", ImageReference: "http://hacccp.or.kr/2.jpg"},
}

type fixture struct {
	extractor *MockExtractor
	refiner   *MockRefiner
	verifier  *MockVerifier
	selector  *MockSelector
	observer  *MockObserver
	service   *ResolutionService
}

func newFixture(detections ...domain.Detection) *fixture {
	f := &fixture{
		extractor: &MockExtractor{detections: detections},
		refiner:   NewMockRefiner(),
		verifier:  NewMockVerifier(),
		selector:  &MockSelector{},
		observer:  NewMockObserver(),
	}
	f.service = NewResolutionService(f.extractor, f.refiner, f.verifier, f.selector, ResolutionConfig{
		SelectPolicy: RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Observer:     f.observer,
	})
	return f
}

func detection(key, local string) domain.Detection {
	return domain.Detection{Key: key, LocalName: local, TranslatedName: key}
}

func TestNewResolutionService_Defaults(t *testing.T) {
	s := NewResolutionService(nil, nil, nil, nil, ResolutionConfig{})

	assert.Equal(t, DefaultTopN, s.topN)
	assert.Equal(t, 5, s.refineCount)
	assert.Equal(t, 4, s.maxConcurrent)
	assert.Equal(t, DefaultExtractPolicy, s.extractPolicy)
	assert.Equal(t, DefaultRefinePolicy, s.refinePolicy)
	assert.Equal(t, DefaultSelectPolicy, s.selectPolicy)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.observer)
	assert.Zero(t, s.detectionTimeout)
}

func TestResolveAll_ChocoPieVerifiedFirst(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.verifier.results["https://a.co/1.jpg"] = true

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, domain.MethodVerified, res.Method)
	require.True(t, res.Matched())
	assert.Equal(t, "Choco Pie", res.Match.Name)
	assert.Equal(t, "https://a.co/1.jpg", res.MatchedImageURL)
	assert.Empty(t, res.Error)

	// The second candidate is never verified
	assert.Equal(t, []string{"https://a.co/1.jpg"}, f.verifier.Calls())
	assert.Zero(t, f.selector.Calls())
	assert.Equal(t, []string{"Choco Pie", "ChocoPie Mini"}, f.refiner.seen["Choco Pie"])
	assert.Equal(t, 1, f.observer.detections[domain.MethodVerified])
}

func TestResolveAll_VerificationInRankedOrder(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.verifier.results["https://haccp.or.kr/2.jpg"] = true

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.MethodVerified, results[0].Method)
	assert.Equal(t, "ChocoPie Mini", results[0].Match.Name)
	assert.Equal(t, "https://haccp.or.kr/2.jpg", results[0].MatchedImageURL)
	assert.Equal(t, []string{"https://a.co/1.jpg", "https://haccp.or.kr/2.jpg"}, f.verifier.Calls())
	assert.Zero(t, f.selector.Calls())
}

func TestResolveAll_DedupeKeepsFirstRanked(t *testing.T) {
	catalog := []domain.CatalogRow{
		{Position: 0, Name: "새우깡", ImageReference: "http://hacccp.or.kr/1.jpg"},
		{Position: 1, Name: "새우깡 매운맛", ImageReference: "http://haccp.or.krr/1.jpg"},
	}
	f := newFixture(detection("shrimp", "새우깡"))

	results, err := f.service.ResolveAll(context.Background(), testImage, catalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"https://haccp.or.kr/1.jpg"}, f.verifier.Calls())
	assert.Equal(t, [][]string{{"https://haccp.or.kr/1.jpg"}}, f.selector.received)
	assert.Equal(t, domain.MethodNone, results[0].Method)
}

func TestResolveAll_InventedNameIgnored(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.refiner.replies["Choco Pie"] = []string{"Totally New Snack", "ChocoPie Mini"}
	f.selector.selected = "http://invented.example/new.jpg"

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []string{"https://haccp.or.kr/2.jpg"}, f.verifier.Calls())
	assert.Equal(t, [][]string{{"https://haccp.or.kr/2.jpg"}}, f.selector.received)
	assert.Equal(t, domain.MethodNone, results[0].Method)
	assert.Nil(t, results[0].Match)
}

func TestResolveAll_RefinerDropsEverything(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.refiner.replies["Choco Pie"] = []string{}

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.MethodNone, results[0].Method)
	assert.Empty(t, f.verifier.Calls())
	assert.Zero(t, f.selector.Calls())
}

func TestResolveAll_SelectorExhausted(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.selector.err = domain.ErrMalformedResponse

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Match)
	assert.Equal(t, domain.MethodNone, results[0].Method)
	assert.Empty(t, results[0].Error)
	assert.Len(t, f.verifier.Calls(), 2)
	assert.Equal(t, 3, f.selector.Calls())
	assert.Equal(t, 3, f.observer.collaborators["selector/failure"])
}

func TestResolveAll_FallbackSelection(t *testing.T) {
	tests := []struct {
		name          string
		selected      string
		expectedName  string
		expectedMatch bool
	}{
		{"canonical url accepted", "https://haccp.or.kr/2.jpg", "ChocoPie Mini", true},
		{"raw typo url normalized before matching", "hacccp.or.kr/2.jpg", "ChocoPie Mini", true},
		{"padded url accepted", "  http://a.co/1.jpg\n", "Choco Pie", true},
		{"unknown url rejected", "https://elsewhere.example/9.jpg", "", false},
		{"empty selection", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(detection("Choco Pie", "Choco Pie"))
			f.selector.selected = tt.selected

			results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, 1, f.selector.Calls())
			if !tt.expectedMatch {
				assert.Nil(t, results[0].Match)
				assert.Equal(t, domain.MethodNone, results[0].Method)
				return
			}
			require.NotNil(t, results[0].Match)
			assert.Equal(t, tt.expectedName, results[0].Match.Name)
			assert.Equal(t, domain.MethodFallback, results[0].Method)
		})
	}
}

func TestResolveAll_VerifierErrorsTreatedAsFalse(t *testing.T) {
	f := newFixture(detection("Choco Pie", "Choco Pie"))
	f.verifier.errs["https://a.co/1.jpg"] = domain.ErrMalformedResponse
	f.verifier.results["https://haccp.or.kr/2.jpg"] = true

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ChocoPie Mini", results[0].Match.Name)
	assert.Equal(t, domain.MethodVerified, results[0].Method)
	// Ambiguous verdicts are never retried
	assert.Equal(t, []string{"https://a.co/1.jpg", "https://haccp.or.kr/2.jpg"}, f.verifier.Calls())
	assert.Equal(t, 1, f.observer.collaborators["verifier/ambiguous"])
}

func TestResolveAll_FallbackGating(t *testing.T) {
	t.Run("selector not called after a match", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"))
		f.verifier.results["https://haccp.or.kr/2.jpg"] = true

		_, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		require.NoError(t, err)
		assert.Zero(t, f.selector.Calls())
	})

	t.Run("selector called once verification is exhausted", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"))

		_, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		require.NoError(t, err)
		assert.Len(t, f.verifier.Calls(), 2)
		assert.Equal(t, 1, f.selector.Calls())
		assert.Equal(t, [][]string{{"https://a.co/1.jpg", "https://haccp.or.kr/2.jpg"}}, f.selector.received)
	})
}

func TestResolveAll_RefinementFailure(t *testing.T) {
	t.Run("malformed replies become a refinement parse error", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"), detection("shrimp", "새우깡"))
		f.refiner.err = domain.ErrMalformedResponse

		results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, domain.MethodFailed, results[0].Method)
		assert.Nil(t, results[0].Match)
		assert.Contains(t, results[0].Error, domain.ErrRefinementParse.Error())
		assert.Equal(t, 3, f.refiner.calls["Choco Pie"])
		assert.Empty(t, f.verifier.Calls())
	})

	t.Run("transport errors are reported without parse classification", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"))
		f.refiner.err = domain.ErrModelAPIFailure

		results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, domain.MethodFailed, results[0].Method)
		assert.NotContains(t, results[0].Error, domain.ErrRefinementParse.Error())
		assert.Contains(t, results[0].Error, domain.ErrModelAPIFailure.Error())
	})
}

func TestResolveAll_ExtractionFailure(t *testing.T) {
	t.Run("retries then fails", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"))
		f.extractor.errs = []error{domain.ErrMalformedResponse, domain.ErrMalformedResponse, domain.ErrMalformedResponse}

		results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		assert.Nil(t, results)
		assert.ErrorIs(t, err, domain.ErrExtractionFailure)
		assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		assert.Equal(t, 3, f.extractor.calls)
		assert.Zero(t, f.refiner.calls["Choco Pie"])
	})

	t.Run("recovers on a later attempt", func(t *testing.T) {
		f := newFixture(detection("Choco Pie", "Choco Pie"))
		f.extractor.errs = []error{domain.ErrMalformedResponse}
		f.verifier.results["https://a.co/1.jpg"] = true

		results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, 2, f.extractor.calls)
		assert.True(t, results[0].Matched())
	})
}

func TestResolveAll_InvalidImage(t *testing.T) {
	f := newFixture()

	_, err := f.service.ResolveAll(context.Background(), domain.SourceImage{}, chocoCatalog)

	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, f.extractor.calls)
}

func TestResolveAll_NoDetections(t *testing.T) {
	f := newFixture()

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestResolveAll_ShortCircuits(t *testing.T) {
	tests := []struct {
		name    string
		det     domain.Detection
		catalog []domain.CatalogRow
	}{
		{
			name:    "blank name",
			det:     domain.Detection{Key: "blank", LocalName: "  "},
			catalog: chocoCatalog,
		},
		{
			name:    "empty catalog",
			det:     detection("Choco Pie", "Choco Pie"),
			catalog: nil,
		},
		{
			name: "only unusable images",
			det:  detection("Choco Pie", "Choco Pie"),
			catalog: []domain.CatalogRow{
				{Position: 0, Name: "Choco Pie", ImageReference: " \t "},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.det)

			results, err := f.service.ResolveAll(context.Background(), testImage, tt.catalog)

			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, domain.MethodNone, results[0].Method)
			assert.Nil(t, results[0].Match)
			assert.Empty(t, f.verifier.Calls())
			assert.Zero(t, f.selector.Calls())
		})
	}
}

func TestResolveAll_TranslatedNameFallback(t *testing.T) {
	f := newFixture(domain.Detection{Key: "k", TranslatedName: "Choco Pie"})
	f.verifier.results["https://a.co/1.jpg"] = true

	results, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Choco Pie", results[0].Match.Name)
	assert.Equal(t, 1, f.refiner.calls["Choco Pie"])
}

func TestResolveAll_PreservesDetectionOrder(t *testing.T) {
	catalog := []domain.CatalogRow{
		{Position: 0, Name: "새우깡", ImageReference: "a.kr/shrimp.jpg"},
		{Position: 1, Name: "양파링", ImageReference: "a.kr/onion.jpg"},
		{Position: 2, Name: "포카칩", ImageReference: "a.kr/chip.jpg"},
		{Position: 3, Name: "꼬북칩", ImageReference: "a.kr/turtle.jpg"},
		{Position: 4, Name: "허니버터칩", ImageReference: "a.kr/honey.jpg"},
	}
	var detections []domain.Detection
	for _, row := range slices.Backward(catalog) {
		detections = append(detections, detection(row.Name, row.Name))
	}

	f := newFixture(detections...)
	for _, row := range catalog {
		f.verifier.results[NormalizeImageURL(row.ImageReference)] = true
	}
	f.service.maxConcurrent = 2

	results, err := f.service.ResolveAll(context.Background(), testImage, catalog)

	require.NoError(t, err)
	require.Len(t, results, len(detections))
	for i, res := range results {
		assert.Equal(t, detections[i], res.Detection)
		require.NotNil(t, res.Match)
		assert.Equal(t, detections[i].LocalName, res.Match.Name)
	}
	assert.Equal(t, len(detections), f.observer.detections[domain.MethodVerified])
}

func TestResolveAll_PanicIsolated(t *testing.T) {
	catalog := []domain.CatalogRow{
		{Position: 0, Name: "Choco Pie", ImageReference: "http://a.co/1.jpg"},
	}
	f := newFixture(detection("Choco Pie", "Choco Pie"), domain.Detection{Key: "blank"})
	f.verifier.panics = true

	results, err := f.service.ResolveAll(context.Background(), testImage, catalog)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, domain.MethodFailed, results[0].Method)
	assert.Contains(t, results[0].Error, "verifier exploded")
	assert.Equal(t, domain.MethodNone, results[1].Method)
	assert.Empty(t, results[1].Error)
}

// blockingVerifier never answers until its context ends
type blockingVerifier struct{}

func (blockingVerifier) SameProduct(ctx context.Context, base domain.SourceImage, candidateURL string) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestResolveAll_DetectionTimeout(t *testing.T) {
	selector := &MockSelector{}
	service := NewResolutionService(
		&MockExtractor{detections: []domain.Detection{detection("Choco Pie", "Choco Pie")}},
		NewMockRefiner(),
		blockingVerifier{},
		selector,
		ResolutionConfig{
			DetectionTimeout: 20 * time.Millisecond,
			Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	)

	results, err := service.ResolveAll(context.Background(), testImage, chocoCatalog)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.MethodFailed, results[0].Method)
	assert.Contains(t, results[0].Error, context.DeadlineExceeded.Error())
	assert.Zero(t, selector.Calls())
}

func TestFilterByNames(t *testing.T) {
	ranked := []domain.Candidate{candidate("a", "1"), candidate("b", "2"), candidate("c", "3")}

	t.Run("keeps ranked order regardless of reply order", func(t *testing.T) {
		assert.Equal(t, []string{"a", "c"}, candidateNames(filterByNames(ranked, []string{"c", "a"})))
	})

	t.Run("invented names never appear", func(t *testing.T) {
		filtered := filterByNames(ranked, []string{"zzz", "b"})
		assert.Equal(t, []string{"b"}, candidateNames(filtered))
	})

	t.Run("output is a subset of input", func(t *testing.T) {
		filtered := filterByNames(ranked, []string{"a", "b", "c", "d", "a"})
		for _, c := range filtered {
			assert.True(t, slices.ContainsFunc(ranked, func(r domain.Candidate) bool { return r.Name == c.Name }))
		}
		assert.Len(t, filtered, 3)
	})

	t.Run("input untouched", func(t *testing.T) {
		_ = filterByNames(ranked, nil)
		assert.Equal(t, []string{"a", "b", "c"}, candidateNames(ranked))
	})
}

func TestFirstVerified(t *testing.T) {
	visited := 0
	v, ok := firstVerified(slices.Values([]int{1, 2, 3, 4}), func(n int) bool {
		visited++
		return n%2 == 0
	})

	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, visited)

	_, ok = firstVerified(slices.Values([]int{}), func(int) bool { return true })
	assert.False(t, ok)
}

func TestResolveAll_ErrorsUnwrap(t *testing.T) {
	f := newFixture(detection("x", "x"))
	boom := errors.New("socket closed")
	f.extractor.errs = []error{boom, boom, boom}

	_, err := f.service.ResolveAll(context.Background(), testImage, chocoCatalog)

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestVerifiable_DropsHostlessReferences(t *testing.T) {
	targets := verifiable([]domain.Candidate{
		candidate("scheme only", "http://"),
		candidate("secure scheme only", "HTTPS://  "),
		candidate("real", "hacccp.or.kr/1.jpg"),
	})

	require.Len(t, targets, 1)
	assert.Equal(t, "real", targets[0].candidate.Name)
	assert.Equal(t, "https://haccp.or.kr/1.jpg", targets[0].url)
}
