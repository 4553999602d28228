package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"coitrack-backend/internal/application/renewal"
	"coitrack-backend/internal/domain"
	"coitrack-backend/internal/locks"
	"coitrack-backend/internal/pkg/actor"
	"coitrack-backend/internal/pkg/apperrors"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var admin = actor.Context{ID: "admin-1", Role: "admin", Email: "admin@coitrack.io"}

// stubSender records notification calls and can be told to fail.
type stubSender struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (s *stubSender) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp unavailable")
	}
	s.calls = append(s.calls, name)
	return nil
}

func (s *stubSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubSender) SendBrokerUploadRequest(ctx context.Context, toEmail, companyName, uploadLink, sampleURL string) error {
	return s.record("upload_request")
}
func (s *stubSender) SendDeficiencyNotice(ctx context.Context, toEmail, companyName, deficiencyMessage, uploadLink string) error {
	return s.record("deficiency_notice")
}
func (s *stubSender) SendBrokerAssigned(ctx context.Context, toEmail, companyName string) error {
	return s.record("broker_assigned")
}
func (s *stubSender) SendBrokerUnassigned(ctx context.Context, toEmail, companyName string) error {
	return s.record("broker_unassigned")
}
func (s *stubSender) SendReplaceReviewNotice(ctx context.Context, toEmail, gcName, subName, projectName, reason string) error {
	return s.record("replace_review")
}
func (s *stubSender) SendRenewalVerificationRequest(ctx context.Context, toEmail, subName string, expiration time.Time) error {
	return s.record("renewal_verification")
}

func setupComplianceTest(t *testing.T) (*Service, *gorm.DB, *stubSender) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.Contractor{},
		&domain.Project{},
		&domain.ProjectSubcontractor{},
		&domain.GeneratedCOI{},
		&domain.BrokerUploadRequest{},
		&domain.ComplianceCheck{},
	))
	sender := &stubSender{}
	svc := &Service{
		DB:          db,
		Lock:        &locks.COILock{},
		Sender:      sender,
		Monitor:     &renewal.Monitor{},
		FrontendURL: "https://app.example.com",
	}
	return svc, db, sender
}

func seedPairing(t *testing.T, db *gorm.DB) (*domain.Project, *domain.ProjectSubcontractor) {
	gcEmail := "gc@builders.com"
	gc := &domain.Contractor{
		CompanyName:    "Summit Builders",
		ContractorType: domain.TypeGeneralContractor,
		Email:          &gcEmail,
	}
	require.NoError(t, db.Create(gc).Error)

	project := &domain.Project{ProjectName: "Harbor Tower", GCID: gc.ID}
	require.NoError(t, db.Create(project).Error)

	ps := &domain.ProjectSubcontractor{ProjectID: project.ID, CompanyName: "Sparks Electric"}
	require.NoError(t, db.Create(ps).Error)
	return project, ps
}

// advanceToReview walks a fresh COI to awaiting_admin_review.
func advanceToReview(t *testing.T, svc *Service, project *domain.Project, ps *domain.ProjectSubcontractor) *domain.GeneratedCOI {
	ctx := context.Background()
	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{
		BrokerName:  "Ann Broker",
		BrokerEmail: "ann@agency.com",
	})
	require.NoError(t, err)

	res, err := svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{DocumentURL: "https://files.example.com/coi.pdf"})
	require.NoError(t, err)
	return res.COI
}

// approveActive walks a fresh COI all the way to active/compliant.
func approveActive(t *testing.T, svc *Service, project *domain.Project, ps *domain.ProjectSubcontractor) *domain.GeneratedCOI {
	coi := advanceToReview(t, svc, project, ps)
	res, err := svc.Approve(context.Background(), admin, coi.ID, ApproveInput{})
	require.NoError(t, err)
	return res.COI
}

// TestCreateCOI_OnePerPairing rejects a second open COI for the same
// (project, subcontractor) pairing.
func TestCreateCOI_OnePerPairing(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingBrokerInfo, coi.Status)
	assert.Equal(t, domain.CompliancePending, coi.ComplianceStatus)

	_, err = svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	assert.True(t, apperrors.IsValidation(err))
}

// TestApprove_SecondActiveForPairingConflicts: a deficient COI may coexist
// with a fresh cycle, but once one COI is active for the pairing the other
// cannot be approved into a second active certificate.
func TestApprove_SecondActiveForPairingConflicts(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coiA := advanceToReview(t, svc, project, ps)
	_, err := svc.Reject(ctx, admin, coiA.ID, RejectInput{DeficiencyMessage: "missing umbrella coverage"})
	require.NoError(t, err)

	// A deficiency cycle does not block opening a fresh one.
	coiB := advanceToReview(t, svc, project, ps)
	require.NotEqual(t, coiA.ID, coiB.ID)
	_, err = svc.Approve(ctx, admin, coiB.ID, ApproveInput{})
	require.NoError(t, err)

	// The deficient COI is corrected and resubmitted, but B already covers
	// the pairing.
	_, err = svc.BrokerUpload(ctx, coiA.ID, BrokerUploadInput{DocumentURL: "https://files.example.com/coi-corrected.pdf"})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, coiA.ID, ApproveInput{})
	assert.True(t, apperrors.IsConflict(err))

	var active int64
	require.NoError(t, db.Model(&domain.GeneratedCOI{}).
		Where("project_id = ? AND subcontractor_id = ? AND status = ?", project.ID, ps.ID, domain.StatusActive).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

// TestRequestBrokerInfo_HappyPath generates a token, opens the upload request
// cycle, advances the status and notifies the broker.
func TestRequestBrokerInfo_HappyPath(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	res, err := svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{
		BrokerName:  "Ann Broker",
		BrokerEmail: "ann@agency.com",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	got := res.COI
	assert.Equal(t, domain.StatusAwaitingBrokerUpload, got.Status)
	require.NotNil(t, got.COIToken)
	assert.Len(t, *got.COIToken, 64)
	assert.NotNil(t, got.TokenExpiresAt)
	assert.NotNil(t, got.BrokerNotifiedDate)
	require.NotNil(t, got.UploadRequestID)

	var req domain.BrokerUploadRequest
	require.NoError(t, db.First(&req, "id = ?", *got.UploadRequestID).Error)
	assert.Equal(t, domain.UploadPending, req.Status)

	// Upload-request email plus first-assignment broker notice.
	assert.Equal(t, []string{"upload_request", "broker_assigned"}, sender.sent())
}

// TestRequestBrokerInfo_Guards: missing or malformed email, and wrong state.
func TestRequestBrokerInfo_Guards(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "not an email"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	require.NoError(t, err)

	// Already past awaiting_broker_info.
	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	assert.True(t, apperrors.IsValidation(err))
}

// TestNotificationFailure_DoesNotRollBack: a failed send surfaces as a
// warning while the committed transition stands.
func TestNotificationFailure_DoesNotRollBack(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	sender.fail = true
	res, err := svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)

	var stored domain.GeneratedCOI
	require.NoError(t, db.First(&stored, "id = ?", coi.ID).Error)
	assert.Equal(t, domain.StatusAwaitingBrokerUpload, stored.Status)
}

// TestBrokerUpload_RoutesBySignatureNeed goes to awaiting_broker_signature
// when the document still needs signing, otherwise straight to review.
func TestBrokerUpload_RoutesBySignatureNeed(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)
	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	require.NoError(t, err)

	res, err := svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{
		DocumentURL:    "https://files.example.com/coi.pdf",
		NeedsSignature: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingBrokerSignature, res.COI.Status)

	res, err = svc.BrokerSign(ctx, coi.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingAdminReview, res.COI.Status)
}

// TestBrokerUpload_Guards requires a document reference and a valid state.
func TestBrokerUpload_Guards(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	_, err = svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{})
	assert.True(t, apperrors.IsValidation(err))

	// Still awaiting broker info, no upload accepted yet.
	_, err = svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{DocumentURL: "https://files.example.com/coi.pdf"})
	assert.True(t, apperrors.IsValidation(err))
}

// TestApprove_ActivatesAndCaches: approval sets active/compliant, records the
// reviewed document as first_coi_url, refreshes the join-row cache and writes
// the audit row.
func TestApprove_ActivatesAndCaches(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)

	coi := advanceToReview(t, svc, project, ps)
	exp := time.Now().AddDate(1, 0, 0)
	res, err := svc.Approve(context.Background(), admin, coi.ID, ApproveInput{GLExpirationDate: &exp})
	require.NoError(t, err)

	got := res.COI
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, domain.ComplianceCompliant, got.ComplianceStatus)
	require.NotNil(t, got.FirstCOIURL)
	assert.Equal(t, "https://files.example.com/coi.pdf", *got.FirstCOIURL)
	require.NotNil(t, got.ReviewedBy)
	assert.Equal(t, admin.ID, *got.ReviewedBy)
	assert.NotNil(t, got.ReviewDate)
	assert.False(t, got.BrokerVerifiedAtRenewal)

	var cached domain.ProjectSubcontractor
	require.NoError(t, db.First(&cached, "id = ?", ps.ID).Error)
	require.NotNil(t, cached.ComplianceStatus)
	assert.Equal(t, domain.ComplianceCompliant, *cached.ComplianceStatus)

	var check domain.ComplianceCheck
	require.NoError(t, db.First(&check, "coi_id = ?", coi.ID).Error)
	assert.Equal(t, "admin_review", check.CheckType)
	assert.Equal(t, "approved", check.Status)

	var req domain.BrokerUploadRequest
	require.NoError(t, db.First(&req, "id = ?", *got.UploadRequestID).Error)
	assert.Equal(t, domain.UploadApproved, req.Status)
}

// TestReject_ThenResubmit: rejection lands in deficiency_pending with the
// deficiency recorded and the broker notified; the broker can then resubmit
// straight back to review, and approval needs an explicit override while the
// recorded issues stand.
func TestReject_ThenResubmit(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)

	_, err := svc.Reject(ctx, admin, coi.ID, RejectInput{})
	assert.True(t, apperrors.IsValidation(err))

	res, err := svc.Reject(ctx, admin, coi.ID, RejectInput{
		DeficiencyMessage: "GL limit below $2M",
		ComplianceIssues:  []string{"gl_limit"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeficiencyPending, res.COI.Status)
	assert.Equal(t, domain.ComplianceNonCompliant, res.COI.ComplianceStatus)
	assert.Contains(t, sender.sent(), "deficiency_notice")

	var cached domain.ProjectSubcontractor
	require.NoError(t, db.First(&cached, "id = ?", ps.ID).Error)
	require.NotNil(t, cached.ComplianceStatus)
	assert.Equal(t, domain.ComplianceNonCompliant, *cached.ComplianceStatus)

	// Correction cycle: upload from deficiency_pending is allowed.
	res, err = svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{DocumentURL: "https://files.example.com/coi-v2.pdf"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingAdminReview, res.COI.Status)

	// Open issues block approval without an override.
	_, err = svc.Approve(ctx, admin, coi.ID, ApproveInput{})
	assert.True(t, apperrors.IsValidation(err))

	res, err = svc.Approve(ctx, admin, coi.ID, ApproveInput{Override: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, res.COI.Status)
	assert.Equal(t, "https://files.example.com/coi-v2.pdf", *res.COI.FirstCOIURL)
}

// TestReplace_AlwaysLandsInReview: replace pulls an active COI back to
// awaiting_admin_review, notifies the project's GC, and never goes anywhere
// else, including back to active.
func TestReplace_AlwaysLandsInReview(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := approveActive(t, svc, project, ps)

	res, err := svc.Replace(ctx, admin, coi.ID, "Carrier changed mid-project")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingAdminReview, res.COI.Status)
	assert.Equal(t, domain.CompliancePending, res.COI.ComplianceStatus)
	assert.Contains(t, sender.sent(), "replace_review")

	var cached domain.ProjectSubcontractor
	require.NoError(t, db.First(&cached, "id = ?", ps.ID).Error)
	assert.Equal(t, domain.CompliancePending, *cached.ComplianceStatus)

	// Replace of a non-active COI is rejected.
	_, err = svc.Replace(ctx, admin, coi.ID, "again")
	assert.True(t, apperrors.IsValidation(err))
}

// TestReplace_EmptyReasonLeavesStateUntouched rejects without a reason and
// the COI stays active.
func TestReplace_EmptyReasonLeavesStateUntouched(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := approveActive(t, svc, project, ps)

	_, err := svc.Replace(ctx, admin, coi.ID, "  ")
	assert.True(t, apperrors.IsValidation(err))

	var stored domain.GeneratedCOI
	require.NoError(t, db.First(&stored, "id = ?", coi.ID).Error)
	assert.Equal(t, domain.StatusActive, stored.Status)
}

// TestRenewalGate_BlocksUntilVerified: inside the renewal window an
// unverified active COI rejects replace and broker edits; verification
// unblocks it, and a second verification in the same cycle is rejected.
func TestRenewalGate_BlocksUntilVerified(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)
	soon := time.Now().AddDate(0, 0, 10)
	_, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &soon})
	require.NoError(t, err)

	_, err = svc.Replace(ctx, admin, coi.ID, "new carrier")
	assert.True(t, apperrors.IsValidation(err))

	name := "Ann Broker"
	_, err = svc.UpdateBroker(ctx, admin, coi.ID, UpdateBrokerInput{BrokerName: &name})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.VerifyRenewal(ctx, admin, coi.ID, VerifyRenewalInput{})
	require.NoError(t, err)

	_, err = svc.VerifyRenewal(ctx, admin, coi.ID, VerifyRenewalInput{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Replace(ctx, admin, coi.ID, "new carrier")
	require.NoError(t, err)
}

// TestApprove_NewDatesReArmRenewal: recording the next cycle's dates at
// approval resets the verified flag and the notice stamp.
func TestApprove_NewDatesReArmRenewal(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)
	soon := time.Now().AddDate(0, 0, 10)
	_, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &soon})
	require.NoError(t, err)

	next := time.Now().AddDate(1, 0, 0)
	_, err = svc.VerifyRenewal(ctx, admin, coi.ID, VerifyRenewalInput{GLExpirationDate: &next})
	require.NoError(t, err)

	_, err = svc.Replace(ctx, admin, coi.ID, "renewed certificate incoming")
	require.NoError(t, err)

	_, err = svc.BrokerUpload(ctx, coi.ID, BrokerUploadInput{DocumentURL: "https://files.example.com/coi-renewed.pdf"})
	assert.True(t, apperrors.IsValidation(err)) // replace re-reviews the document on file, no new upload cycle

	renewed := time.Now().AddDate(2, 0, 0)
	res, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &renewed})
	require.NoError(t, err)
	assert.False(t, res.COI.BrokerVerifiedAtRenewal)
	assert.Nil(t, res.COI.RenewalNoticeDate)
}

// TestUpdateBroker_ReassignmentNotifiesBoth.
func TestUpdateBroker_ReassignmentNotifiesBoth(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := approveActive(t, svc, project, ps)
	sender.calls = nil

	email := "new@agency.com"
	res, err := svc.UpdateBroker(ctx, admin, coi.ID, UpdateBrokerInput{BrokerEmail: &email})
	require.NoError(t, err)
	assert.Equal(t, email, *res.COI.BrokerEmail)
	assert.ElementsMatch(t, []string{"broker_assigned", "broker_unassigned"}, sender.sent())

	// Identical save fires nothing.
	sender.calls = nil
	_, err = svc.UpdateBroker(ctx, admin, coi.ID, UpdateBrokerInput{BrokerEmail: &email})
	require.NoError(t, err)
	assert.Empty(t, sender.sent())
}

// TestFindByToken covers the valid, unknown and expired cases.
func TestFindByToken(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)
	res, err := svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	require.NoError(t, err)
	token := *res.COI.COIToken

	got, err := svc.FindByToken(ctx, "  "+token+"  ")
	require.NoError(t, err)
	assert.Equal(t, coi.ID, got.ID)

	_, err = svc.FindByToken(ctx, "deadbeef")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.FindByToken(ctx, "")
	assert.True(t, apperrors.IsNotFound(err))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&domain.GeneratedCOI{}).Where("id = ?", coi.ID).Update("token_expires_at", past).Error)
	_, err = svc.FindByToken(ctx, token)
	assert.True(t, apperrors.IsNotFound(err))
}

// TestExpirationSweep_OneNoticePerCycle sends the verification request once,
// stamps renewal_notice_date and skips it on the next sweep.
func TestExpirationSweep_OneNoticePerCycle(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)
	soon := time.Now().AddDate(0, 0, 10)
	_, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &soon})
	require.NoError(t, err)
	sender.calls = nil

	statuses, err := svc.ExpirationSweep(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, renewal.BandExpiring, statuses[0].Band)
	assert.True(t, statuses[0].VerificationRequired)
	assert.Equal(t, []string{"renewal_verification"}, sender.sent())

	var stored domain.GeneratedCOI
	require.NoError(t, db.First(&stored, "id = ?", coi.ID).Error)
	assert.NotNil(t, stored.RenewalNoticeDate)

	sender.calls = nil
	_, err = svc.ExpirationSweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, sender.sent())
}

// TestExpirationSweep_FailedSendRetries leaves the stamp unset when the send
// fails, so the next sweep tries again.
func TestExpirationSweep_FailedSendRetries(t *testing.T) {
	svc, db, sender := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)
	soon := time.Now().AddDate(0, 0, 5)
	_, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &soon})
	require.NoError(t, err)
	sender.calls = nil

	sender.fail = true
	_, err = svc.ExpirationSweep(ctx, time.Now())
	require.NoError(t, err)

	var stored domain.GeneratedCOI
	require.NoError(t, db.First(&stored, "id = ?", coi.ID).Error)
	assert.Nil(t, stored.RenewalNoticeDate)

	sender.fail = false
	_, err = svc.ExpirationSweep(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"renewal_verification"}, sender.sent())
}

// TestExpirationSweep_NoSenderLeavesUnstamped: without a configured sender
// nothing is dispatched, so the cycle stays unstamped for a later sweep.
func TestExpirationSweep_NoSenderLeavesUnstamped(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi := advanceToReview(t, svc, project, ps)
	soon := time.Now().AddDate(0, 0, 10)
	_, err := svc.Approve(ctx, admin, coi.ID, ApproveInput{GLExpirationDate: &soon})
	require.NoError(t, err)

	svc.Sender = nil
	statuses, err := svc.ExpirationSweep(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].VerificationRequired)

	var stored domain.GeneratedCOI
	require.NoError(t, db.First(&stored, "id = ?", coi.ID).Error)
	assert.Nil(t, stored.RenewalNoticeDate)
}

// TestConcurrentTransition_Conflict: the per-COI lock turns a second
// in-flight transition into a conflict.
func TestConcurrentTransition_Conflict(t *testing.T) {
	svc, db, _ := setupComplianceTest(t)
	project, ps := seedPairing(t, db)
	ctx := context.Background()

	coi, err := svc.CreateCOI(ctx, admin, project.ID, ps.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Lock.Acquire(ctx, coi.ID.String()))
	defer svc.Lock.Release(ctx, coi.ID.String())

	_, err = svc.RequestBrokerInfo(ctx, admin, coi.ID, RequestBrokerInfoInput{BrokerEmail: "ann@agency.com"})
	assert.True(t, apperrors.IsConflict(err))
}

// TestNormalizeStatus_LegacyAlias maps the old signature label onto the
// current one and unknown labels onto awaiting_broker_info.
func TestNormalizeStatus_LegacyAlias(t *testing.T) {
	assert.Equal(t, domain.StatusAwaitingBrokerSignature, domain.NormalizeStatus(domain.StatusPendingBrokerSignature))
	assert.Equal(t, domain.StatusAwaitingBrokerInfo, domain.NormalizeStatus("bogus"))
	assert.Equal(t, domain.StatusActive, domain.NormalizeStatus(domain.StatusActive))
}

// TestProjectionStatus derives the cache value from the COI alone.
func TestProjectionStatus(t *testing.T) {
	assert.Equal(t, domain.ComplianceCompliant, ProjectionStatus(&domain.GeneratedCOI{
		Status: domain.StatusActive, ComplianceStatus: domain.ComplianceCompliant,
	}))
	assert.Equal(t, domain.ComplianceNonCompliant, ProjectionStatus(&domain.GeneratedCOI{
		Status: domain.StatusDeficiencyPending,
	}))
	assert.Equal(t, domain.CompliancePending, ProjectionStatus(&domain.GeneratedCOI{
		Status: domain.StatusAwaitingAdminReview,
	}))
}
