package domain

import "time"

// Sort orders accepted by job listings.
const (
	SortNewest    = "newest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortRating    = "rating"
)

// ParseSort maps a query value to a sort order. Unknown values fall back to
// SortNewest.
func ParseSort(s string) string {
	switch s {
	case SortPriceLow, SortPriceHigh, SortRating:
		return s
	default:
		return SortNewest
	}
}

// JobFilter narrows a job listing. Only active jobs are ever listed.
type JobFilter struct {
	Query    string
	Category string
	Location string
	Sort     string
}

// UserSummary is the display-safe view of a user embedded in other resources.
type UserSummary struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	Rating float64 `json:"rating"`
}

// ApplicationView is an application with its applicant resolved.
type ApplicationView struct {
	Applicant UserSummary `json:"applicant"`
	Status    string      `json:"status"`
	AppliedAt time.Time   `json:"applied_at"`
}

// ReviewView is a review with its reviewer resolved.
type ReviewView struct {
	Reviewer  UserSummary `json:"reviewer"`
	Rating    int         `json:"rating"`
	Comment   string      `json:"comment,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// JobDetail is a job with owner, applicants and reviewers resolved.
type JobDetail struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Category     string            `json:"category"`
	Description  string            `json:"description"`
	Details      string            `json:"details,omitempty"`
	Price        float64           `json:"price"`
	Location     string            `json:"location"`
	Deadline     time.Time         `json:"deadline"`
	Requirements []string          `json:"requirements"`
	Tags         []string          `json:"tags"`
	Status       string            `json:"status"`
	Owner        UserSummary       `json:"owner"`
	Applications []ApplicationView `json:"applications"`
	Reviews      []ReviewView      `json:"reviews"`
	Rating       float64           `json:"rating"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewJobDetail resolves j's user references from users. Unknown ids resolve
// to a summary carrying only the id.
func NewJobDetail(j *Job, users map[string]UserSummary) *JobDetail {
	d := &JobDetail{
		ID:           j.ID,
		Title:        j.Title,
		Category:     j.Category,
		Description:  j.Description,
		Details:      j.Details,
		Price:        j.Price,
		Location:     j.Location,
		Deadline:     j.Deadline,
		Requirements: j.Requirements,
		Tags:         j.Tags,
		Status:       j.Status,
		Owner:        lookup(users, j.OwnerID),
		Applications: make([]ApplicationView, 0, len(j.Applications)),
		Reviews:      ResolveReviews(j.Reviews, users),
		Rating:       j.Rating,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	for _, a := range j.Applications {
		d.Applications = append(d.Applications, ApplicationView{
			Applicant: lookup(users, a.ApplicantID),
			Status:    a.Status,
			AppliedAt: a.AppliedAt,
		})
	}
	return d
}

// UserIDs returns every user id referenced by j, owner first, without duplicates.
func (j *Job) UserIDs() []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(j.OwnerID)
	for _, a := range j.Applications {
		add(a.ApplicantID)
	}
	for _, r := range j.Reviews {
		add(r.ReviewerID)
	}
	return ids
}

// ResolveReviews attaches reviewer summaries to reviews.
func ResolveReviews(reviews []Review, users map[string]UserSummary) []ReviewView {
	out := make([]ReviewView, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, ReviewView{
			Reviewer:  lookup(users, r.ReviewerID),
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

func lookup(users map[string]UserSummary, id string) UserSummary {
	if s, ok := users[id]; ok {
		return s
	}
	return UserSummary{ID: id}
}

// JobListItem is one row of a job listing.
type JobListItem struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	Category         string      `json:"category"`
	Description      string      `json:"description"`
	Price            float64     `json:"price"`
	Location         string      `json:"location"`
	Deadline         time.Time   `json:"deadline"`
	Tags             []string    `json:"tags"`
	Status           string      `json:"status"`
	Rating           float64     `json:"rating"`
	Owner            UserSummary `json:"owner"`
	ApplicationCount int         `json:"application_count"`
	ReviewCount      int         `json:"review_count"`
	CreatedAt        time.Time   `json:"created_at"`
}

// PublicProfile is the view of a user shown to other users.
type PublicProfile struct {
	UserSummary
	Role       string       `json:"role"`
	Bio        string       `json:"bio,omitempty"`
	Skills     []string     `json:"skills"`
	Reviews    []ReviewView `json:"reviews"`
	JobsPosted int          `json:"jobs_posted"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewPublicProfile builds u's public view with reviewers resolved.
func NewPublicProfile(u *User, reviewers map[string]UserSummary) *PublicProfile {
	return &PublicProfile{
		UserSummary: u.Summary(),
		Role:        u.Role,
		Bio:         u.Bio,
		Skills:      u.Skills,
		Reviews:     ResolveReviews(u.Reviews, reviewers),
		JobsPosted:  len(u.JobsPosted),
		CreatedAt:   u.CreatedAt,
	}
}

// ReviewerIDs returns the ids of everyone who reviewed u.
func (u *User) ReviewerIDs() []string {
	ids := make([]string, 0, len(u.Reviews))
	for _, r := range u.Reviews {
		ids = append(ids, r.ReviewerID)
	}
	return ids
}
