package domain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/sitestack/config"
	"github.com/customeros/sitestack/dto"
	"github.com/customeros/sitestack/internal/background"
	"github.com/customeros/sitestack/internal/enum"
	er "github.com/customeros/sitestack/internal/errors"
	"github.com/customeros/sitestack/internal/models"
	"github.com/customeros/sitestack/internal/repository"
	"github.com/customeros/sitestack/internal/retry"
	"github.com/customeros/sitestack/internal/testutil"
	"github.com/customeros/sitestack/internal/utils"
	"github.com/customeros/sitestack/services/hosting/vercel"
)

const testProject = "project-1"

type testEnv struct {
	service   *domainService
	repos     *repository.Repositories
	platform  *testutil.MockHostingPlatform
	publisher *testutil.RecordingPublisher
	runner    *background.Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repos := repository.InitRepositories(testutil.NewTestDB(t))
	platform := &testutil.MockHostingPlatform{}
	publisher := &testutil.RecordingPublisher{}
	log := testutil.NewTestLogger()
	runner := background.NewRunner(log)
	dns := &testutil.StaticDNSChecker{Observation: dto.DNSObservation{
		ExpectedType:  "A",
		ExpectedValue: "76.76.21.21",
		ObservedA:     []string{"192.0.2.10"},
	}}

	service := NewDomainService(repos, platform, dns, publisher, retry.DefaultPolicy(), log, runner, 5*time.Second, 5*time.Second).(*domainService)
	return &testEnv{
		service:   service,
		repos:     repos,
		platform:  platform,
		publisher: publisher,
		runner:    runner,
	}
}

func (e *testEnv) seedDomain(t *testing.T, hostname string, verified bool) *models.Domain {
	t.Helper()
	domain := &models.Domain{ProjectID: testProject, Domain: hostname}
	require.NoError(t, e.repos.DomainRepository.CreateDomain(context.Background(), domain))
	if verified {
		_, err := e.repos.DomainRepository.MarkVerified(context.Background(), domain.ID, enum.SSLStateReady, utils.Now().Add(-time.Hour))
		require.NoError(t, err)
	}
	return e.reload(t, domain.ID)
}

func (e *testEnv) reload(t *testing.T, id string) *models.Domain {
	t.Helper()
	domain, err := e.repos.DomainRepository.GetDomain(context.Background(), id)
	require.NoError(t, err)
	return domain
}

func (e *testEnv) logs(t *testing.T, domainID string) []models.OperationLog {
	t.Helper()
	logs, err := e.repos.OperationLogRepository.GetDomainLogs(context.Background(), domainID, 0)
	require.NoError(t, err)
	return logs
}

func (e *testEnv) events(t *testing.T, domainID string) []enum.OperationEvent {
	t.Helper()
	var events []enum.OperationEvent
	for _, entry := range e.logs(t, domainID) {
		events = append(events, entry.Event)
	}
	return events
}

func (e *testEnv) logEntry(t *testing.T, domainID string, event enum.OperationEvent) models.OperationLog {
	t.Helper()
	for _, entry := range e.logs(t, domainID) {
		if entry.Event == event {
			return entry
		}
	}
	t.Fatalf("no %s log for domain %s", event, domainID)
	return models.OperationLog{}
}

func (e *testEnv) pendingRetries(t *testing.T) []models.PendingRetry {
	t.Helper()
	retries, err := e.repos.PendingRetryRepository.GetDue(context.Background(), utils.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	return retries
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.runner.Wait(ctx))
}

func configured(state enum.SSLState) *dto.DomainStatus {
	return &dto.DomainStatus{Configured: true, SSL: &dto.SSLStatus{State: state}}
}

func notConfigured() *dto.DomainStatus {
	return &dto.DomainStatus{
		Configured: false,
		SSL:        &dto.SSLStatus{State: enum.SSLStatePending},
		Verification: []dto.VerificationChallenge{{
			Type:   "TXT",
			Domain: "_vercel.example.com",
			Value:  "vc-domain-verify=example.com,abc",
			Reason: "pending_domain_verification",
		}},
	}
}

func TestEffectiveSSLState(t *testing.T) {
	assert.Equal(t, enum.SSLStateReady, EffectiveSSLState(true, nil))
	assert.Equal(t, enum.SSLStateReady, EffectiveSSLState(true, &dto.SSLStatus{State: enum.SSLStatePending}))
	assert.Equal(t, enum.SSLStateReady, EffectiveSSLState(true, &dto.SSLStatus{State: enum.SSLStateInitializing}))
	assert.Equal(t, enum.SSLStateReady, EffectiveSSLState(true, &dto.SSLStatus{State: enum.SSLStateReady}))
	assert.Equal(t, enum.SSLStateError, EffectiveSSLState(true, &dto.SSLStatus{State: enum.SSLStateError}))
	assert.Equal(t, enum.SSLStatePending, EffectiveSSLState(false, &dto.SSLStatus{State: enum.SSLStatePending}))
	assert.Equal(t, enum.SSLStateUnset, EffectiveSSLState(false, nil))
}

func TestVerify_ConfiguredDomainIsVerified(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateInitializing), nil)

	result, err := env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.True(t, result.Configured)
	assert.Equal(t, enum.OutcomeVerified, result.Outcome)
	require.NotNil(t, result.SSL)
	assert.Equal(t, enum.SSLStateReady, result.SSL.State)
	assert.False(t, result.ShouldRetry)
	assert.Zero(t, result.NextRetryDelay)
	assert.Nil(t, result.Diagnostics)

	stored := env.reload(t, domain.ID)
	assert.True(t, stored.Verified)
	require.NotNil(t, stored.VerifiedAt)
	assert.Equal(t, enum.SSLStateReady, stored.SSLState)

	assert.ElementsMatch(t, []enum.OperationEvent{enum.OperationVerifyRequest, enum.OperationVerifyResult}, env.events(t, domain.ID))

	env.drain(t)
	published := env.publisher.Events()
	require.Len(t, published, 1)
	assert.Equal(t, domain.ID, published[0].DomainID)
	assert.Equal(t, "READY", published[0].SSLState)
	assert.False(t, published[0].Companion)
}

func TestVerify_ResultLogRecordsPreviousState(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", true)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil)

	_, err := env.service.Verify(context.Background(), domain.ID, "", 3)
	require.NoError(t, err)

	details := env.logEntry(t, domain.ID, enum.OperationVerifyResult).Details
	assert.Equal(t, "example.com", details["hostname"])
	assert.Equal(t, true, details["previousVerified"])
	assert.Equal(t, "READY", details["previousSslState"])
	assert.Equal(t, "pending", details["outcome"])
	assert.Equal(t, true, details["verified"])

	fresh := env.seedDomain(t, "shop.example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "shop.example.com").Return(configured(enum.SSLStateReady), nil)

	_, err = env.service.Verify(context.Background(), fresh.ID, "", 1)
	require.NoError(t, err)

	details = env.logEntry(t, fresh.ID, enum.OperationVerifyResult).Details
	assert.Equal(t, "shop.example.com", details["hostname"])
	assert.Equal(t, false, details["previousVerified"])
	assert.Equal(t, "", details["previousSslState"])
}

func TestVerify_CertificateErrorIsReported(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateError), nil)

	result, err := env.service.Verify(context.Background(), domain.ID, "", 1)
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, enum.SSLStateError, result.SSL.State)
	assert.Equal(t, enum.SSLStateError, env.reload(t, domain.ID).SSLState)
}

func TestVerify_NotConfiguredAdvisesRetry(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil)

	result, err := env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, enum.OutcomePending, result.Outcome)
	assert.True(t, result.ShouldRetry)
	assert.Equal(t, 2*time.Second, result.NextRetryDelay)
	require.Len(t, result.Verification, 1)
	assert.Equal(t, "TXT", result.Verification[0].Type)
	require.NotNil(t, result.Diagnostics)
	assert.Equal(t, "example.com", result.Diagnostics.Hostname)

	stored := env.reload(t, domain.ID)
	assert.False(t, stored.Verified)
	assert.Nil(t, stored.VerifiedAt)

	retries := env.pendingRetries(t)
	require.Len(t, retries, 1)
	assert.Equal(t, domain.ID, retries[0].DomainID)
	assert.Equal(t, 2, retries[0].Attempt)

	entry := env.logEntry(t, domain.ID, enum.OperationVerifyResult)
	assert.Equal(t, enum.LogLevelInfo, entry.Level)
	assert.Equal(t, "pending", entry.Details["outcome"])
	assert.Equal(t, true, entry.Details["retryScheduled"])
	assert.EqualValues(t, 2000, entry.Details["retryDelayMs"])
	assert.NotNil(t, entry.Details["diagnostics"])
}

func TestVerify_RetriesExhausted(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil)

	_, err := env.service.Verify(context.Background(), domain.ID, "example.com", 4)
	require.NoError(t, err)
	require.Len(t, env.pendingRetries(t), 1)

	result, err := env.service.Verify(context.Background(), domain.ID, "example.com", 5)
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.False(t, result.ShouldRetry)
	assert.Zero(t, result.NextRetryDelay)
	assert.Empty(t, env.pendingRetries(t))

	entry := env.logs(t, domain.ID)
	found := false
	for _, e := range entry {
		if e.Event == enum.OperationVerifyResult && e.Details["message"] == manualCheckMessage {
			found = true
		}
	}
	assert.True(t, found)
}

func TestVerify_PlatformErrorBecomesResult(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").
		Return(nil, errors.Wrap(er.ErrPlatformUnavailable, "status 403: Not authorized"))

	result, err := env.service.Verify(context.Background(), domain.ID, "example.com", 2)
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, enum.OutcomeError, result.Outcome)
	assert.Contains(t, result.Error, "Not authorized")
	assert.True(t, result.ShouldRetry)
	assert.Equal(t, 4*time.Second, result.NextRetryDelay)

	entry := env.logEntry(t, domain.ID, enum.OperationVerifyResult)
	assert.Equal(t, enum.LogLevelWarn, entry.Level)
	assert.Contains(t, entry.Details["error"], "Not authorized")
}

func TestVerify_VerifiedDomainNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", true)
	verifiedAt := *domain.VerifiedAt

	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil).Once()
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(nil, er.ErrPlatformUnavailable).Once()

	result, err := env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.False(t, result.ShouldRetry)

	result, err = env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.NotEmpty(t, result.Error)

	stored := env.reload(t, domain.ID)
	assert.True(t, stored.Verified)
	require.NotNil(t, stored.VerifiedAt)
	assert.True(t, verifiedAt.Equal(*stored.VerifiedAt))
	assert.Equal(t, enum.SSLStateReady, stored.SSLState)
	assert.Empty(t, env.pendingRetries(t))
}

func TestVerify_RepeatedCallsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)

	_, err := env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)
	first := env.reload(t, domain.ID)

	_, err = env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)
	second := env.reload(t, domain.ID)

	assert.True(t, second.Verified)
	assert.True(t, first.VerifiedAt.Equal(*second.VerifiedAt))

	env.drain(t)
	assert.Len(t, env.publisher.Events(), 1)
}

func TestVerify_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)

	_, err := env.service.Verify(context.Background(), "", "example.com", 1)
	assert.True(t, errors.Is(err, er.ErrInvalidInput))

	_, err = env.service.Verify(context.Background(), "missing", "example.com", 1)
	assert.True(t, errors.Is(err, er.ErrDomainNotFound))

	_, err = env.service.Verify(context.Background(), domain.ID, "other.com", 1)
	assert.True(t, errors.Is(err, er.ErrHostnameMismatch))

	env.platform.AssertNotCalled(t, "GetDomainStatus", mock.Anything, mock.Anything)
}

func TestVerify_AttemptIsNormalized(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil)

	result, err := env.service.Verify(context.Background(), domain.ID, "EXAMPLE.com.", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempt)
	assert.Equal(t, 2*time.Second, result.NextRetryDelay)
}

func TestVerify_PersistsAfterCallerCancels(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)

	ctx, cancel := context.WithCancel(context.Background())
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").
		Run(func(mock.Arguments) { cancel() }).
		Return(configured(enum.SSLStateReady), nil)

	result, err := env.service.Verify(ctx, domain.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	assert.True(t, env.reload(t, domain.ID).Verified)
	assert.Contains(t, env.events(t, domain.ID), enum.OperationVerifyResult)
}

func TestVerify_SlowPlatformOutlivesCallerDeadline(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v9/projects/prj_1/domains/example.com":
			_, _ = w.Write([]byte(`{"name":"example.com","verified":true}`))
		case "/v6/domains/example.com/config":
			_, _ = w.Write([]byte(`{"misconfigured":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	env.service.platform = vercel.NewVercelService(
		&config.VercelConfig{Url: server.URL, Token: "token", ProjectID: "prj_1"},
		&config.HostingConfig{Timeout: 5 * time.Second},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := env.service.Verify(ctx, domain.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Equal(t, enum.OutcomeVerified, result.Outcome)
	assert.Equal(t, enum.SSLStateReady, result.SSL.State)

	stored := env.reload(t, domain.ID)
	assert.True(t, stored.Verified)
	assert.Equal(t, enum.SSLStateReady, stored.SSLState)
	assert.Empty(t, env.pendingRetries(t))
}

func TestVerify_ReconcilesWWWCompanion(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	www := env.seedDomain(t, "www.example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)
	env.platform.On("GetDomainStatus", mock.Anything, "www.example.com").Return(configured(enum.SSLStatePending), nil)

	result, err := env.service.Verify(context.Background(), apex.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	storedWWW := env.reload(t, www.ID)
	assert.True(t, storedWWW.Verified)
	require.NotNil(t, storedWWW.VerifiedAt)
	assert.Equal(t, enum.SSLStateReady, storedWWW.SSLState)
	assert.Contains(t, env.events(t, www.ID), enum.OperationCompanionVerified)

	env.drain(t)
	published := env.publisher.Events()
	require.Len(t, published, 2)
	companions := 0
	for _, event := range published {
		if event.Companion {
			companions++
			assert.Equal(t, "www.example.com", event.Domain)
		}
	}
	assert.Equal(t, 1, companions)
}

func TestVerify_ReconcilesApexFromWWW(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	www := env.seedDomain(t, "www.example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "www.example.com").Return(configured(enum.SSLStateReady), nil)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)

	_, err := env.service.Verify(context.Background(), www.ID, "www.example.com", 1)
	require.NoError(t, err)

	assert.True(t, env.reload(t, apex.ID).Verified)
}

func TestVerify_CompanionFailureIsNotPropagated(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	www := env.seedDomain(t, "www.example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)
	env.platform.On("GetDomainStatus", mock.Anything, "www.example.com").Return(nil, er.ErrPlatformUnavailable)

	result, err := env.service.Verify(context.Background(), apex.ID, "example.com", 1)
	require.NoError(t, err)
	assert.True(t, result.Verified)

	assert.False(t, env.reload(t, www.ID).Verified)
	entry := env.logEntry(t, www.ID, enum.OperationCompanionCheckFailed)
	assert.Equal(t, enum.LogLevelWarn, entry.Level)
}

func TestVerify_UnconfiguredCompanionStaysUnverified(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	www := env.seedDomain(t, "www.example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)
	env.platform.On("GetDomainStatus", mock.Anything, "www.example.com").Return(notConfigured(), nil)

	_, err := env.service.Verify(context.Background(), apex.ID, "example.com", 1)
	require.NoError(t, err)

	assert.False(t, env.reload(t, www.ID).Verified)
	assert.Empty(t, env.events(t, www.ID))
}

func TestReconcileCompanion_MissingCompanionIsNoop(t *testing.T) {
	env := newTestEnv(t)
	env.seedDomain(t, "example.com", true)

	env.service.ReconcileCompanion(context.Background(), testProject, "example.com")

	env.platform.AssertNotCalled(t, "GetDomainStatus", mock.Anything, mock.Anything)
}

func TestSetIncludeWWW_Enable(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", true)
	env.platform.On("AddDomain", mock.Anything, "www.example.com").Return(nil)

	err := env.service.SetIncludeWWW(context.Background(), apex.ID, "example.com", testProject, true)
	require.NoError(t, err)

	assert.True(t, env.reload(t, apex.ID).IncludeWWW)
	www, err := env.repos.DomainRepository.GetDomainByHostname(context.Background(), testProject, "www.example.com")
	require.NoError(t, err)
	require.NotNil(t, www)
	assert.False(t, www.Verified)
	assert.Contains(t, env.events(t, apex.ID), enum.OperationWWWEnabled)
	assert.Contains(t, env.events(t, www.ID), enum.OperationPlatformAdd)
}

func TestSetIncludeWWW_AlreadyOnPlatformIsSuccess(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	env.platform.On("AddDomain", mock.Anything, "www.example.com").Return(errors.Wrap(er.ErrPlatformDomainExists, "www.example.com"))

	err := env.service.SetIncludeWWW(context.Background(), apex.ID, "example.com", testProject, true)
	require.NoError(t, err)

	assert.True(t, env.reload(t, apex.ID).IncludeWWW)
	www, err := env.repos.DomainRepository.GetDomainByHostname(context.Background(), testProject, "www.example.com")
	require.NoError(t, err)
	assert.NotNil(t, www)
}

func TestSetIncludeWWW_PlatformFailureKeepsFlag(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	env.platform.On("AddDomain", mock.Anything, "www.example.com").Return(errors.Wrap(er.ErrPlatformUnavailable, "status 500"))

	err := env.service.SetIncludeWWW(context.Background(), apex.ID, "example.com", testProject, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, er.ErrCompanionProvisionFailed))

	www, err := env.repos.DomainRepository.GetDomainByHostname(context.Background(), testProject, "www.example.com")
	require.NoError(t, err)
	assert.Nil(t, www)
	assert.True(t, env.reload(t, apex.ID).IncludeWWW)

	entry := env.logEntry(t, apex.ID, enum.OperationWWWRollback)
	assert.Equal(t, enum.LogLevelWarn, entry.Level)
}

func TestSetIncludeWWW_ExistingCompanionIsKeptOnFailure(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", false)
	existing := env.seedDomain(t, "www.example.com", false)
	env.platform.On("AddDomain", mock.Anything, "www.example.com").Return(er.ErrPlatformUnavailable)

	err := env.service.SetIncludeWWW(context.Background(), apex.ID, "", "", true)
	assert.True(t, errors.Is(err, er.ErrCompanionProvisionFailed))
	assert.NotNil(t, env.reload(t, existing.ID))
	assert.True(t, env.reload(t, apex.ID).IncludeWWW)
}

func TestSetIncludeWWW_Disable(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", true)
	require.NoError(t, env.repos.DomainRepository.SetIncludeWWW(context.Background(), apex.ID, true))
	www := env.seedDomain(t, "www.example.com", true)
	env.platform.On("RemoveDomain", mock.Anything, "www.example.com").Return(er.ErrPlatformUnavailable)

	err := env.service.SetIncludeWWW(context.Background(), apex.ID, "example.com", testProject, false)
	require.NoError(t, err)

	assert.Nil(t, env.reload(t, www.ID))
	assert.False(t, env.reload(t, apex.ID).IncludeWWW)
	assert.Contains(t, env.events(t, apex.ID), enum.OperationWWWDisabled)
	assert.Equal(t, enum.LogLevelWarn, env.logEntry(t, www.ID, enum.OperationPlatformRemove).Level)
}

func TestSetIncludeWWW_RejectsNonApex(t *testing.T) {
	env := newTestEnv(t)
	sub := env.seedDomain(t, "shop.example.com", false)

	err := env.service.SetIncludeWWW(context.Background(), sub.ID, "shop.example.com", testProject, true)
	assert.True(t, errors.Is(err, er.ErrNotApexDomain))

	err = env.service.SetIncludeWWW(context.Background(), sub.ID, "example.com", testProject, true)
	assert.True(t, errors.Is(err, er.ErrHostnameMismatch))

	err = env.service.SetIncludeWWW(context.Background(), sub.ID, "", "project-2", true)
	assert.True(t, errors.Is(err, er.ErrInvalidInput))

	env.platform.AssertNotCalled(t, "AddDomain", mock.Anything, mock.Anything)
}

func TestCreateDomain(t *testing.T) {
	env := newTestEnv(t)
	env.platform.On("AddDomain", mock.Anything, "example.com").Return(nil)

	domain, err := env.service.CreateDomain(context.Background(), testProject, " HTTPS://Example.com/ ", false)
	require.NoError(t, err)

	assert.Equal(t, "example.com", domain.Domain)
	assert.Equal(t, testProject, domain.ProjectID)
	assert.False(t, domain.Verified)
	assert.Nil(t, domain.VerifiedAt)
	assert.ElementsMatch(t, []enum.OperationEvent{enum.OperationDomainCreated, enum.OperationPlatformAdd}, env.events(t, domain.ID))

	_, err = env.service.CreateDomain(context.Background(), testProject, "example.com", false)
	assert.True(t, errors.Is(err, er.ErrDomainAlreadyExists))
}

func TestCreateDomain_WithWWW(t *testing.T) {
	env := newTestEnv(t)
	env.platform.On("AddDomain", mock.Anything, "example.co.uk").Return(nil)
	env.platform.On("AddDomain", mock.Anything, "www.example.co.uk").Return(nil)

	domain, err := env.service.CreateDomain(context.Background(), testProject, "example.co.uk", true)
	require.NoError(t, err)
	assert.True(t, domain.IncludeWWW)

	domains, err := env.service.GetProjectDomains(context.Background(), testProject)
	require.NoError(t, err)
	assert.Len(t, domains, 2)
}

func TestCreateDomain_PlatformFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.platform.On("AddDomain", mock.Anything, "example.com").Return(errors.Wrap(er.ErrPlatformUnavailable, "status 400"))

	_, err := env.service.CreateDomain(context.Background(), testProject, "example.com", false)
	assert.True(t, errors.Is(err, er.ErrPlatformUnavailable))

	existing, err := env.repos.DomainRepository.GetDomainByHostname(context.Background(), testProject, "example.com")
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestCreateDomain_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.CreateDomain(context.Background(), "", "example.com", false)
	assert.True(t, errors.Is(err, er.ErrInvalidInput))

	_, err = env.service.CreateDomain(context.Background(), testProject, "not a domain", false)
	assert.True(t, errors.Is(err, er.ErrInvalidHostname))

	_, err = env.service.CreateDomain(context.Background(), testProject, "shop.example.com", true)
	assert.True(t, errors.Is(err, er.ErrNotApexDomain))

	env.platform.AssertNotCalled(t, "AddDomain", mock.Anything, mock.Anything)
}

func TestRemoveDomain(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "shop.example.com", false)
	require.NoError(t, env.repos.PendingRetryRepository.Schedule(context.Background(), &models.PendingRetry{
		DomainID: domain.ID, ProjectID: testProject, Hostname: domain.Domain, Attempt: 2, DueAt: utils.Now(),
	}))
	env.platform.On("RemoveDomain", mock.Anything, "shop.example.com").Return(er.ErrPlatformUnavailable)

	require.NoError(t, env.service.RemoveDomain(context.Background(), domain.ID))
	assert.Nil(t, env.reload(t, domain.ID))
	assert.Empty(t, env.pendingRetries(t))

	env.drain(t)
	entry := env.logEntry(t, domain.ID, enum.OperationPlatformRemove)
	assert.Equal(t, enum.LogLevelWarn, entry.Level)
	assert.Contains(t, env.events(t, domain.ID), enum.OperationDomainRemoved)

	err := env.service.RemoveDomain(context.Background(), domain.ID)
	assert.True(t, errors.Is(err, er.ErrDomainNotFound))
}

func TestRemoveDomain_RemovesWWWCompanion(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", true)
	require.NoError(t, env.repos.DomainRepository.SetIncludeWWW(context.Background(), apex.ID, true))
	www := env.seedDomain(t, "www.example.com", true)
	env.platform.On("RemoveDomain", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, env.service.RemoveDomain(context.Background(), apex.ID))
	env.drain(t)

	assert.Nil(t, env.reload(t, www.ID))
	env.platform.AssertCalled(t, "RemoveDomain", mock.Anything, "example.com")
	env.platform.AssertCalled(t, "RemoveDomain", mock.Anything, "www.example.com")
}

func TestRemoveDomain_WWWRowClearsApexFlag(t *testing.T) {
	env := newTestEnv(t)
	apex := env.seedDomain(t, "example.com", true)
	require.NoError(t, env.repos.DomainRepository.SetIncludeWWW(context.Background(), apex.ID, true))
	www := env.seedDomain(t, "www.example.com", true)
	env.platform.On("RemoveDomain", mock.Anything, "www.example.com").Return(nil)

	require.NoError(t, env.service.RemoveDomain(context.Background(), www.ID))
	env.drain(t)

	stored := env.reload(t, apex.ID)
	require.NotNil(t, stored)
	assert.False(t, stored.IncludeWWW)
	assert.Contains(t, env.events(t, apex.ID), enum.OperationWWWDisabled)
	env.platform.AssertNotCalled(t, "RemoveDomain", mock.Anything, "example.com")
}

func TestRecheckPendingDomains(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	require.NoError(t, env.repos.PendingRetryRepository.Schedule(context.Background(), &models.PendingRetry{
		DomainID: domain.ID, ProjectID: testProject, Hostname: domain.Domain, Attempt: 3, DueAt: utils.Now().Add(-time.Minute),
	}))
	require.NoError(t, env.repos.PendingRetryRepository.Schedule(context.Background(), &models.PendingRetry{
		DomainID: "gone", ProjectID: testProject, Hostname: "gone.example.com", Attempt: 2, DueAt: utils.Now().Add(-time.Minute),
	}))
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateReady), nil)

	checked, err := env.service.RecheckPendingDomains(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, 1, checked)
	assert.True(t, env.reload(t, domain.ID).Verified)
	assert.Empty(t, env.pendingRetries(t))
	assert.Equal(t, float64(3), env.logEntry(t, domain.ID, enum.OperationVerifyRequest).Details["attempt"])
}

func TestGetOperationLogs(t *testing.T) {
	env := newTestEnv(t)
	domain := env.seedDomain(t, "example.com", false)
	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil)

	_, err := env.service.Verify(context.Background(), domain.ID, "example.com", 1)
	require.NoError(t, err)

	logs, err := env.service.GetOperationLogs(context.Background(), domain.ID, 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	_, err = env.service.GetOperationLogs(context.Background(), "", 10)
	assert.True(t, errors.Is(err, er.ErrInvalidInput))
}

// Apex with www enabled goes from unconfigured to verified across two
// attempts and carries its companion along.
func TestDomainLifecycle_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.platform.On("AddDomain", mock.Anything, mock.Anything).Return(nil)

	apex, err := env.service.CreateDomain(context.Background(), testProject, "example.com", true)
	require.NoError(t, err)

	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(notConfigured(), nil).Once()
	first, err := env.service.Verify(context.Background(), apex.ID, "example.com", 1)
	require.NoError(t, err)
	assert.False(t, first.Verified)
	assert.True(t, first.ShouldRetry)
	assert.Equal(t, 2*time.Second, first.NextRetryDelay)

	env.platform.On("GetDomainStatus", mock.Anything, "example.com").Return(configured(enum.SSLStateInitializing), nil)
	env.platform.On("GetDomainStatus", mock.Anything, "www.example.com").Return(configured(enum.SSLStateInitializing), nil)
	second, err := env.service.Verify(context.Background(), apex.ID, "example.com", 2)
	require.NoError(t, err)
	assert.True(t, second.Verified)
	assert.Equal(t, enum.SSLStateReady, second.SSL.State)

	domains, err := env.service.GetProjectDomains(context.Background(), testProject)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	for _, domain := range domains {
		assert.True(t, domain.Verified, domain.Domain)
		assert.NotNil(t, domain.VerifiedAt, domain.Domain)
		assert.Equal(t, enum.SSLStateReady, domain.SSLState, domain.Domain)
	}
	assert.Empty(t, env.pendingRetries(t))

	env.drain(t)
	assert.Len(t, env.publisher.Events(), 2)
}
