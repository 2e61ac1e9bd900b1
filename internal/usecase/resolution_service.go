package usecase

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/seo401b/new-Allert/internal/domain"
)

// Collaborator names reported to the observer
const (
	CollaboratorExtractor = "extractor"
	CollaboratorRefiner   = "refiner"
	CollaboratorVerifier  = "verifier"
	CollaboratorSelector  = "selector"
)

// Collaborator call outcomes reported to the observer
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeRejected  = "rejected"
	OutcomeAmbiguous = "ambiguous"
)

// Pipeline stages reported to the observer
const (
	StageExtract = "extract"
	StageRank    = "rank"
	StageRefine  = "refine"
	StageVerify  = "verify"
	StageSelect  = "select"
)

const (
	defaultRefineCount             = 5
	defaultMaxConcurrentDetections = 4
)

// ResolutionConfig holds configuration for the resolution service.
// Zero values fall back to defaults.
type ResolutionConfig struct {
	TopN                    int
	RefineCount             int
	ExtractPolicy           RetryPolicy
	RefinePolicy            RetryPolicy
	SelectPolicy            RetryPolicy
	MaxConcurrentDetections int
	DetectionTimeout        time.Duration // Zero means no per-detection deadline
	Logger                  *slog.Logger
	Observer                domain.ResolutionObserver
}

// ResolutionService resolves every product pictured in an image to at most one catalog row
type ResolutionService struct {
	extractor domain.VisionExtractor
	refiner   domain.TextRefiner
	verifier  domain.PairVerifier
	selector  domain.CandidateSelector

	topN             int
	refineCount      int
	extractPolicy    RetryPolicy
	refinePolicy     RetryPolicy
	selectPolicy     RetryPolicy
	maxConcurrent    int
	detectionTimeout time.Duration
	logger           *slog.Logger
	observer         domain.ResolutionObserver
}

// NewResolutionService creates a new resolution service with its collaborators
func NewResolutionService(
	extractor domain.VisionExtractor,
	refiner domain.TextRefiner,
	verifier domain.PairVerifier,
	selector domain.CandidateSelector,
	config ResolutionConfig,
) *ResolutionService {
	s := &ResolutionService{
		extractor:        extractor,
		refiner:          refiner,
		verifier:         verifier,
		selector:         selector,
		topN:             config.TopN,
		refineCount:      config.RefineCount,
		extractPolicy:    config.ExtractPolicy.orDefault(DefaultExtractPolicy),
		refinePolicy:     config.RefinePolicy.orDefault(DefaultRefinePolicy),
		selectPolicy:     config.SelectPolicy.orDefault(DefaultSelectPolicy),
		maxConcurrent:    config.MaxConcurrentDetections,
		detectionTimeout: config.DetectionTimeout,
		logger:           config.Logger,
		observer:         config.Observer,
	}

	if s.topN <= 0 {
		s.topN = DefaultTopN
	}
	if s.refineCount <= 0 {
		s.refineCount = defaultRefineCount
	}
	if s.maxConcurrent <= 0 {
		s.maxConcurrent = defaultMaxConcurrentDetections
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}

	return s
}

// ResolveAll extracts the products pictured in image and resolves each against snapshot.
// Results are returned in extractor order, one per detection. Only an invalid image or an
// extraction failure fails the call; per-detection problems are reported in the results.
func (s *ResolutionService) ResolveAll(
	ctx context.Context,
	image domain.SourceImage,
	snapshot []domain.CatalogRow,
) ([]domain.ResolutionResult, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidRequest)
	}

	logger := s.logger.With("run_id", uuid.NewString())

	detections, err := s.extract(ctx, logger, image)
	if err != nil {
		return nil, err
	}

	results := make([]domain.ResolutionResult, len(detections))
	if len(detections) == 0 {
		logger.Info("no products detected")
		return results, nil
	}

	index := NewCatalogIndex(snapshot)
	logger.Info("resolving detections", "detections", len(detections), "catalog_names", index.Len())

	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, det := range detections {
		g.Go(func() error {
			results[i] = s.resolveIsolated(ctx, logger, image, index, det)
			s.observer.ObserveDetection(results[i].Method)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *ResolutionService) extract(
	ctx context.Context,
	logger *slog.Logger,
	image domain.SourceImage,
) ([]domain.Detection, error) {
	start := time.Now()
	defer func() { s.observer.ObserveStage(StageExtract, time.Since(start)) }()

	detections, attempts, err := retry(ctx, s.extractPolicy,
		func(ctx context.Context) ([]domain.Detection, error) {
			return s.extractor.Extract(ctx, image)
		},
		func(attempt int, err error) {
			s.observer.ObserveCollaborator(CollaboratorExtractor, OutcomeFailure)
			logger.Warn("extraction attempt failed", "attempt", attempt, "error", err)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: after %d attempts: %w", domain.ErrExtractionFailure, attempts, err)
	}
	s.observer.ObserveCollaborator(CollaboratorExtractor, OutcomeSuccess)

	return detections, nil
}

// resolveIsolated runs one detection's pipeline so that neither a panic nor the
// optional deadline can escape into sibling detections.
func (s *ResolutionService) resolveIsolated(
	ctx context.Context,
	logger *slog.Logger,
	image domain.SourceImage,
	index *CatalogIndex,
	det domain.Detection,
) (result domain.ResolutionResult) {
	logger = logger.With("detection", det.Key)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("detection pipeline panicked", "panic", r)
			result = failedResult(det, fmt.Errorf("detection pipeline panicked: %v", r))
		}
	}()

	if s.detectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.detectionTimeout)
		defer cancel()
	}

	return s.resolveDetection(ctx, logger, image, index, det)
}

func (s *ResolutionService) resolveDetection(
	ctx context.Context,
	logger *slog.Logger,
	image domain.SourceImage,
	index *CatalogIndex,
	det domain.Detection,
) domain.ResolutionResult {
	result := domain.ResolutionResult{Detection: det, Method: domain.MethodNone}

	query := strings.TrimSpace(det.QueryName())
	if query == "" {
		logger.Warn("detection has no usable name")
		return result
	}

	start := time.Now()
	ranked := RankCandidates(query, index, s.topN)
	s.observer.ObserveStage(StageRank, time.Since(start))
	if len(ranked) == 0 {
		logger.Info("no lexical candidates", "query", query)
		return result
	}

	refined, err := s.refine(ctx, logger, query, ranked)
	if err != nil {
		logger.Error("refinement failed", "query", query, "error", err)
		return failedResult(det, err)
	}

	targets := verifiable(DedupeByImage(refined))
	if len(targets) == 0 {
		logger.Info("no candidates with a usable image", "query", query)
		return result
	}

	if match, ok := s.verify(ctx, logger, image, targets); ok {
		return matchedResult(det, match, domain.MethodVerified)
	}
	if err := ctx.Err(); err != nil {
		return failedResult(det, err)
	}

	if match, ok := s.fallback(ctx, logger, image, targets); ok {
		return matchedResult(det, match, domain.MethodFallback)
	}
	if err := ctx.Err(); err != nil {
		return failedResult(det, err)
	}

	logger.Info("no confident match", "query", query, "candidates", len(targets))
	return result
}

// refine narrows ranked to the names the refiner echoes back, keeping ranked order
func (s *ResolutionService) refine(
	ctx context.Context,
	logger *slog.Logger,
	query string,
	ranked []domain.Candidate,
) ([]domain.Candidate, error) {
	start := time.Now()
	defer func() { s.observer.ObserveStage(StageRefine, time.Since(start)) }()

	names := make([]string, len(ranked))
	for i, c := range ranked {
		names[i] = c.Name
	}

	echoed, attempts, err := retry(ctx, s.refinePolicy,
		func(ctx context.Context) ([]string, error) {
			return s.refiner.Refine(ctx, query, names, s.refineCount)
		},
		func(attempt int, err error) {
			s.observer.ObserveCollaborator(CollaboratorRefiner, OutcomeFailure)
			logger.Warn("refinement attempt failed", "attempt", attempt, "error", err)
		},
	)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedResponse) {
			return nil, fmt.Errorf("%w: after %d attempts: %w", domain.ErrRefinementParse, attempts, err)
		}
		return nil, fmt.Errorf("refine %q: %w", query, err)
	}
	s.observer.ObserveCollaborator(CollaboratorRefiner, OutcomeSuccess)

	refined := filterByNames(ranked, echoed)
	logger.Debug("refined candidates", "ranked", len(ranked), "refined", len(refined))

	return refined, nil
}

// filterByNames keeps the candidates whose name appears in names.
// Names not present among candidates are ignored.
func filterByNames(candidates []domain.Candidate, names []string) []domain.Candidate {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}

	return slices.DeleteFunc(slices.Clone(candidates), func(c domain.Candidate) bool {
		_, ok := keep[c.Name]
		return !ok
	})
}

// target is a deduplicated candidate together with its canonical image URL
type target struct {
	candidate domain.Candidate
	url       string
}

// verifiable drops candidates whose image reference has no canonical form
func verifiable(candidates []domain.Candidate) []target {
	targets := make([]target, 0, len(candidates))
	for _, c := range candidates {
		if url := NormalizeImageURL(c.Row.ImageReference); url != "" {
			targets = append(targets, target{candidate: c, url: url})
		}
	}
	return targets
}

// verify asks the verifier about each target in order and stops at the first confirmation
func (s *ResolutionService) verify(
	ctx context.Context,
	logger *slog.Logger,
	image domain.SourceImage,
	targets []target,
) (target, bool) {
	start := time.Now()
	defer func() { s.observer.ObserveStage(StageVerify, time.Since(start)) }()

	return firstVerified(slices.Values(targets), func(t target) bool {
		if ctx.Err() != nil {
			return false
		}

		same, err := s.verifier.SameProduct(ctx, image, t.url)
		if err != nil {
			s.observer.ObserveCollaborator(CollaboratorVerifier, OutcomeAmbiguous)
			logger.Warn("verification ambiguous, treating as different product",
				"candidate", t.candidate.Name,
				"error", fmt.Errorf("%w: %w", domain.ErrVerificationAmbiguous, err),
			)
			return false
		}

		if same {
			s.observer.ObserveCollaborator(CollaboratorVerifier, OutcomeSuccess)
			logger.Info("candidate verified", "candidate", t.candidate.Name, "url", t.url)
		} else {
			s.observer.ObserveCollaborator(CollaboratorVerifier, OutcomeRejected)
			logger.Debug("candidate rejected", "candidate", t.candidate.Name)
		}
		return same
	})
}

// firstVerified consumes seq until pred holds
func firstVerified[T any](seq iter.Seq[T], pred func(T) bool) (T, bool) {
	for v := range seq {
		if pred(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// fallback asks the selector for its best guess among every target
func (s *ResolutionService) fallback(
	ctx context.Context,
	logger *slog.Logger,
	image domain.SourceImage,
	targets []target,
) (target, bool) {
	start := time.Now()
	defer func() { s.observer.ObserveStage(StageSelect, time.Since(start)) }()

	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.url
	}

	selected, attempts, err := retry(ctx, s.selectPolicy,
		func(ctx context.Context) (string, error) {
			return s.selector.SelectBest(ctx, image, urls)
		},
		func(attempt int, err error) {
			s.observer.ObserveCollaborator(CollaboratorSelector, OutcomeFailure)
			logger.Warn("selection attempt failed", "attempt", attempt, "error", err)
		},
	)
	if err != nil {
		logger.Warn("selection gave up",
			"error", fmt.Errorf("%w: after %d attempts: %w", domain.ErrSelectionExhausted, attempts, err))
		return target{}, false
	}

	canonical := NormalizeImageURL(selected)
	if canonical == "" {
		s.observer.ObserveCollaborator(CollaboratorSelector, OutcomeRejected)
		logger.Info("selector chose no candidate")
		return target{}, false
	}

	for _, t := range targets {
		if t.url == canonical {
			s.observer.ObserveCollaborator(CollaboratorSelector, OutcomeSuccess)
			logger.Info("candidate selected", "candidate", t.candidate.Name, "url", t.url)
			return t, true
		}
	}

	s.observer.ObserveCollaborator(CollaboratorSelector, OutcomeRejected)
	logger.Warn("selector returned an unknown url", "url", selected)
	return target{}, false
}

func matchedResult(det domain.Detection, t target, method domain.ResolutionMethod) domain.ResolutionResult {
	row := t.candidate.Row
	return domain.ResolutionResult{
		Detection:       det,
		Match:           &row,
		MatchedImageURL: t.url,
		Method:          method,
	}
}

func failedResult(det domain.Detection, err error) domain.ResolutionResult {
	return domain.ResolutionResult{
		Detection: det,
		Method:    domain.MethodFailed,
		Error:     err.Error(),
	}
}

type noopObserver struct{}

func (noopObserver) ObserveDetection(domain.ResolutionMethod) {}
func (noopObserver) ObserveCollaborator(string, string)       {}
func (noopObserver) ObserveStage(string, time.Duration)       {}
