package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/event"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/pagination"
	"github.com/utafrali/SmallJobs/pkg/validator"
)

// --- Create ---

func TestJobService_Create_Success(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)
	ctx := context.Background()

	store.jobs.On("LockTitle", mock.Anything, "Mow the back lawn").Return(nil)
	store.jobs.On("TitleExists", mock.Anything, "Mow the back lawn").Return(false, nil)
	store.jobs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Job")).Return(nil)
	store.users.On("AppendPostedJob", mock.Anything, ownerID, mock.AnythingOfType("string")).Return(nil)

	job, err := svc.Create(ctx, ownerID, validJobInput())

	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusActive, job.Status)
	assert.Equal(t, 50.0, job.Price)
	assert.Zero(t, job.Rating)
	assert.Empty(t, job.Applications)
	assert.Empty(t, job.Reviews)
	assert.Equal(t, ownerID, job.OwnerID)
	assert.Equal(t, testNow, job.CreatedAt)
	assert.Equal(t, 1, store.txs)
	assert.Equal(t, []string{event.TopicJobCreated}, rec.topics)

	store.users.AssertCalled(t, "AppendPostedJob", mock.Anything, ownerID, job.ID)
	store.assertExpectations(t)
}

func TestJobService_Create_DuplicateTitle(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	store.jobs.On("LockTitle", mock.Anything, "Mow the back lawn").Return(nil)
	store.jobs.On("TitleExists", mock.Anything, "Mow the back lawn").Return(true, nil)

	job, err := svc.Create(context.Background(), ownerID, validJobInput())

	assert.Nil(t, job)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, rec.topics)
	store.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	store.users.AssertNotCalled(t, "AppendPostedJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_Create_TitleCheckDisabled(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)
	svc.titleUnique = false

	store.jobs.On("Create", mock.Anything, mock.AnythingOfType("*domain.Job")).Return(nil)
	store.users.On("AppendPostedJob", mock.Anything, ownerID, mock.AnythingOfType("string")).Return(nil)

	_, err := svc.Create(context.Background(), ownerID, validJobInput())

	require.NoError(t, err)
	store.jobs.AssertNotCalled(t, "LockTitle", mock.Anything, mock.Anything)
	store.jobs.AssertNotCalled(t, "TitleExists", mock.Anything, mock.Anything)
}

func TestJobService_Create_ValidationFailsBeforeStore(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	in := validJobInput()
	in.Price = 0
	in.Requirements = []string{"only one"}

	job, err := svc.Create(context.Background(), ownerID, in)

	assert.Nil(t, job)
	var ve *validator.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields(), "price")
	assert.Contains(t, ve.Fields(), "requirements")
	assert.Zero(t, store.txs)
}

func TestJobService_Create_OwnerUpdateFailurePropagates(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	store.jobs.On("LockTitle", mock.Anything, mock.Anything).Return(nil)
	store.jobs.On("TitleExists", mock.Anything, mock.Anything).Return(false, nil)
	store.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.users.On("AppendPostedJob", mock.Anything, ownerID, mock.Anything).
		Return(apperrors.NotFound("user", ownerID))

	_, err := svc.Create(context.Background(), ownerID, validJobInput())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, rec.topics)
}

// --- Get ---

func TestJobService_Get_ResolvesUsers(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	job := activeJob(application(applicantID, domain.ApplicationPending))
	store.jobs.On("GetByID", mock.Anything, jobID).Return(job, nil)
	store.users.On("Summaries", mock.Anything, []string{ownerID, applicantID}).Return(map[string]domain.UserSummary{
		ownerID:     {ID: ownerID, Name: "Ayse", Rating: 4.5},
		applicantID: {ID: applicantID, Name: "Mehmet"},
	}, nil)

	detail, err := svc.Get(context.Background(), jobID)

	require.NoError(t, err)
	assert.Equal(t, "Ayse", detail.Owner.Name)
	require.Len(t, detail.Applications, 1)
	assert.Equal(t, "Mehmet", detail.Applications[0].Applicant.Name)
	assert.Equal(t, 1, store.reads)
	store.assertExpectations(t)
}

func TestJobService_Get_MalformedIDIsNotFound(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	detail, err := svc.Get(context.Background(), "not-a-uuid")

	assert.Nil(t, detail)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, store.reads)
}

func TestJobService_Get_Missing(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("GetByID", mock.Anything, jobID).Return(nil, apperrors.NotFound("job", jobID))

	_, err := svc.Get(context.Background(), jobID)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	store.users.AssertNotCalled(t, "Summaries", mock.Anything, mock.Anything)
}

// --- List ---

func TestJobService_List_CategoryAndSort(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	page := pagination.New(1, 10)
	want := domain.JobFilter{Category: domain.CategoryCleaning, Sort: domain.SortPriceLow}
	items := []domain.JobListItem{
		{ID: "a", Category: domain.CategoryCleaning, Price: 20, Status: domain.JobStatusActive},
		{ID: "b", Category: domain.CategoryCleaning, Price: 35, Status: domain.JobStatusActive},
	}
	store.jobs.On("List", mock.Anything, want, page).Return(items, 23, nil)

	res, err := svc.List(context.Background(), domain.JobFilter{Category: " Cleaning ", Sort: "price-low"}, page)

	require.NoError(t, err)
	assert.Equal(t, items, res.Data)
	assert.Equal(t, 23, res.TotalCount)
	assert.Equal(t, 3, res.TotalPages)
	assert.True(t, res.HasNext)
	assert.False(t, res.HasPrev)
	store.assertExpectations(t)
}

func TestJobService_List_UnknownSortFallsBackToNewest(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	page := pagination.DefaultParams()
	store.jobs.On("List", mock.Anything, domain.JobFilter{Query: "lawn", Sort: domain.SortNewest}, page).
		Return(nil, 0, nil)

	res, err := svc.List(context.Background(), domain.JobFilter{Query: "  lawn ", Sort: "cheapest"}, page)

	require.NoError(t, err)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
	assert.Zero(t, res.TotalPages)
}

func TestJobService_List_InvalidCategory(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	_, err := svc.List(context.Background(), domain.JobFilter{Category: "Plumbing"}, pagination.DefaultParams())

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, store.reads)
}

func TestJobService_List_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("List", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, 0, apperrors.ServiceUnavailable(context.DeadlineExceeded))

	_, err := svc.List(context.Background(), domain.JobFilter{}, pagination.DefaultParams())

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

// --- Update ---

func TestJobService_Update_Owner(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	price := 75.0
	status := domain.JobStatusCompleted
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)
	store.jobs.On("Update", mock.Anything, mock.AnythingOfType("*domain.Job")).Return(nil)

	job, err := svc.Update(context.Background(), ownerID, jobID, domain.JobPatch{Price: &price, Status: &status})

	require.NoError(t, err)
	assert.Equal(t, 75.0, job.Price)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, testNow, job.UpdatedAt)
	assert.Equal(t, []string{event.TopicJobUpdated}, rec.topics)
	store.assertExpectations(t)
}

func TestJobService_Update_NotOwner(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	price := 75.0
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)

	_, err := svc.Update(context.Background(), otherID, jobID, domain.JobPatch{Price: &price})

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	store.jobs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestJobService_Update_TerminalStatus(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	job := activeJob()
	job.Status = domain.JobStatusCancelled
	status := domain.JobStatusActive
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(job, nil)

	_, err := svc.Update(context.Background(), ownerID, jobID, domain.JobPatch{Status: &status})

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	store.jobs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

// --- Delete ---

func TestJobService_Delete_RemovesReferences(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)
	store.jobs.On("Delete", mock.Anything, jobID).Return(nil)
	store.users.On("RemovePostedJob", mock.Anything, ownerID, jobID).Return(nil)
	store.users.On("RemoveAppliedJobEverywhere", mock.Anything, jobID).Return(nil)

	err := svc.Delete(context.Background(), ownerID, jobID)

	require.NoError(t, err)
	assert.Equal(t, 1, store.txs)
	assert.Equal(t, []string{event.TopicJobDeleted}, rec.topics)
	store.assertExpectations(t)
}

func TestJobService_Delete_NotOwner(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)

	err := svc.Delete(context.Background(), applicantID, jobID)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Empty(t, rec.topics)
	store.jobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestJobService_Delete_CommitFailure(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)
	store.jobs.On("Delete", mock.Anything, jobID).Return(nil)
	store.users.On("RemovePostedJob", mock.Anything, ownerID, jobID).
		Return(apperrors.ServiceUnavailable(errors.New("connection reset")))

	err := svc.Delete(context.Background(), ownerID, jobID)

	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
	store.users.AssertNotCalled(t, "RemoveAppliedJobEverywhere", mock.Anything, mock.Anything)
}

// --- Apply ---

func TestJobService_Apply_ThenReapplyConflicts(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)
	ctx := context.Background()

	pending := domain.Application{ApplicantID: applicantID, Status: domain.ApplicationPending, AppliedAt: testNow}
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil).Once()
	store.jobs.On("AddApplication", mock.Anything, jobID, pending).Return(true, nil).Once()
	store.users.On("AppendAppliedJob", mock.Anything, applicantID, jobID).Return(nil).Once()

	app, err := svc.Apply(ctx, applicantID, jobID)
	require.NoError(t, err)
	assert.Equal(t, pending, app)

	stored := activeJob(pending)
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(stored, nil).Once()

	_, err = svc.Apply(ctx, applicantID, jobID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Len(t, stored.Applications, 1)

	assert.Equal(t, []string{event.TopicApplicationSubmitted}, rec.topics)
	store.jobs.AssertNumberOfCalls(t, "AddApplication", 1)
	store.assertExpectations(t)
}

func TestJobService_Apply_InsertRaceConflicts(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)
	store.jobs.On("AddApplication", mock.Anything, jobID, mock.Anything).Return(false, nil)

	_, err := svc.Apply(context.Background(), applicantID, jobID)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	store.users.AssertNotCalled(t, "AppendAppliedJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_Apply_InactiveJob(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	job := activeJob()
	job.Status = domain.JobStatusCompleted
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(job, nil)

	_, err := svc.Apply(context.Background(), applicantID, jobID)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	store.jobs.AssertNotCalled(t, "AddApplication", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobService_Apply_MissingJob(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	_, err := svc.Apply(context.Background(), applicantID, "123")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(nil, apperrors.NotFound("job", jobID))
	_, err = svc.Apply(context.Background(), applicantID, jobID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

// --- Decide ---

func TestJobService_Decide_Accept(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).
		Return(activeJob(application(applicantID, domain.ApplicationPending)), nil)
	store.jobs.On("UpdateApplicationStatus", mock.Anything, jobID, mock.MatchedBy(func(a domain.Application) bool {
		return a.ApplicantID == applicantID && a.Status == domain.ApplicationAccepted && a.DecidedAt != nil
	})).Return(nil)

	app, err := svc.Decide(context.Background(), ownerID, jobID, applicantID, domain.ApplicationAccepted)

	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationAccepted, app.Status)
	require.NotNil(t, app.DecidedAt)
	assert.Equal(t, testNow, *app.DecidedAt)
	assert.Equal(t, []string{event.TopicApplicationDecided}, rec.topics)
	store.assertExpectations(t)
}

func TestJobService_Decide_Errors(t *testing.T) {
	tests := []struct {
		name      string
		actor     string
		applicant string
		status    string
		apps      []domain.Application
		want      error
	}{
		{"not owner", applicantID, applicantID, domain.ApplicationAccepted,
			[]domain.Application{application(applicantID, domain.ApplicationPending)}, apperrors.ErrForbidden},
		{"no such application", ownerID, otherID, domain.ApplicationAccepted,
			[]domain.Application{application(applicantID, domain.ApplicationPending)}, apperrors.ErrNotFound},
		{"already decided", ownerID, applicantID, domain.ApplicationRejected,
			[]domain.Application{application(applicantID, domain.ApplicationAccepted)}, apperrors.ErrInvalidState},
		{"bad target status", ownerID, applicantID, domain.ApplicationPending,
			[]domain.Application{application(applicantID, domain.ApplicationPending)}, apperrors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc, rec := newTestJobService(store)
			store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(tt.apps...), nil)

			_, err := svc.Decide(context.Background(), tt.actor, jobID, tt.applicant, tt.status)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rec.topics)
			store.jobs.AssertNotCalled(t, "UpdateApplicationStatus", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestJobService_Decide_MalformedApplicant(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	_, err := svc.Decide(context.Background(), ownerID, jobID, "nobody", domain.ApplicationAccepted)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, store.txs)
}

// --- Review ---

func TestJobService_Review_ThenDuplicateConflicts(t *testing.T) {
	store := newFakeStore()
	svc, rec := newTestJobService(store)
	ctx := context.Background()

	store.jobs.On("GetForUpdate", mock.Anything, jobID).
		Return(activeJob(application(applicantID, domain.ApplicationAccepted)), nil).Once()
	store.jobs.On("AddReview", mock.Anything, jobID, mock.AnythingOfType("domain.Review")).Return(true, nil).Once()
	store.jobs.On("SetRating", mock.Anything, jobID, 4.0, testNow).Return(nil).Once()

	res, err := svc.Review(ctx, applicantID, jobID, 4, "Quick and tidy")
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Rating)
	assert.Equal(t, 1, res.ReviewCount)
	assert.Equal(t, "Quick and tidy", res.Review.Comment)

	reviewed := activeJob(application(applicantID, domain.ApplicationAccepted))
	reviewed.Reviews = []domain.Review{res.Review}
	reviewed.Rating = 4
	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(reviewed, nil).Once()

	_, err = svc.Review(ctx, applicantID, jobID, 2, "")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Len(t, reviewed.Reviews, 1)
	assert.Equal(t, 4.0, reviewed.Rating)

	assert.Equal(t, []string{event.TopicJobReviewed}, rec.topics)
	store.assertExpectations(t)
}

func TestJobService_Review_MeanOfAllReviews(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	job := activeJob(
		application(applicantID, domain.ApplicationAccepted),
		application(otherID, domain.ApplicationAccepted),
	)
	job.Reviews = []domain.Review{{ReviewerID: otherID, Rating: 3, CreatedAt: testNow}}
	job.Rating = 3

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(job, nil)
	store.jobs.On("AddReview", mock.Anything, jobID, mock.Anything).Return(true, nil)
	store.jobs.On("SetRating", mock.Anything, jobID, 4.0, testNow).Return(nil)

	res, err := svc.Review(context.Background(), applicantID, jobID, 5, "")

	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Rating)
	assert.Equal(t, 2, res.ReviewCount)
	store.assertExpectations(t)
}

func TestJobService_Review_RequiresAcceptedApplication(t *testing.T) {
	for _, apps := range [][]domain.Application{
		nil,
		{application(applicantID, domain.ApplicationPending)},
		{application(applicantID, domain.ApplicationRejected)},
	} {
		store := newFakeStore()
		svc, _ := newTestJobService(store)
		store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(apps...), nil)

		_, err := svc.Review(context.Background(), applicantID, jobID, 5, "")

		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		store.jobs.AssertNotCalled(t, "AddReview", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestJobService_Review_RatingOutOfRange(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).
		Return(activeJob(application(applicantID, domain.ApplicationAccepted)), nil)

	_, err := svc.Review(context.Background(), applicantID, jobID, 6, "")

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestJobService_Review_InsertRaceConflicts(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestJobService(store)

	store.jobs.On("GetForUpdate", mock.Anything, jobID).
		Return(activeJob(application(applicantID, domain.ApplicationAccepted)), nil)
	store.jobs.On("AddReview", mock.Anything, jobID, mock.Anything).Return(false, nil)

	_, err := svc.Review(context.Background(), applicantID, jobID, 5, "")

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	store.jobs.AssertNotCalled(t, "SetRating", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- Events ---

func TestJobService_PublishFailureDoesNotFailOperation(t *testing.T) {
	store := newFakeStore()
	svc := NewJobService(store, event.NewProducer(failingPublisher{}, newTestLogger()), newTestLogger(), false)
	svc.now = fixedClock

	store.jobs.On("Create", mock.Anything, mock.Anything).Return(nil)
	store.users.On("AppendPostedJob", mock.Anything, ownerID, mock.Anything).Return(nil)

	job, err := svc.Create(context.Background(), ownerID, validJobInput())

	require.NoError(t, err)
	assert.NotNil(t, job)
}

func TestJobService_NoProducer(t *testing.T) {
	store := newFakeStore()
	svc := NewJobService(store, nil, newTestLogger(), false)
	svc.now = fixedClock

	store.jobs.On("GetForUpdate", mock.Anything, jobID).Return(activeJob(), nil)
	store.jobs.On("Delete", mock.Anything, jobID).Return(nil)
	store.users.On("RemovePostedJob", mock.Anything, ownerID, jobID).Return(nil)
	store.users.On("RemoveAppliedJobEverywhere", mock.Anything, jobID).Return(nil)

	assert.NoError(t, svc.Delete(context.Background(), ownerID, jobID))
}
