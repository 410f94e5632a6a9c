// Command seed populates a development database with demo accounts and jobs
// by driving the same services the API uses, so every seeded row passes the
// usual validation and rating rules.
//
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/SmallJobs/internal/auth"
	"github.com/utafrali/SmallJobs/internal/config"
	"github.com/utafrali/SmallJobs/internal/domain"
	"github.com/utafrali/SmallJobs/internal/repository/postgres"
	"github.com/utafrali/SmallJobs/internal/service"
	"github.com/utafrali/SmallJobs/migrations"
	pkgconfig "github.com/utafrali/SmallJobs/pkg/config"
	"github.com/utafrali/SmallJobs/pkg/database"
	apperrors "github.com/utafrali/SmallJobs/pkg/errors"
	"github.com/utafrali/SmallJobs/pkg/logger"
)

const seedPassword = "Seed!Pass2026"

type seedConfig struct {
	Customers int   `env:"SEED_CUSTOMERS" envDefault:"10"`
	Providers int   `env:"SEED_PROVIDERS" envDefault:"20"`
	Jobs      int   `env:"SEED_JOBS" envDefault:"50"`
	RandSeed  int64 `env:"SEED_RAND" envDefault:"42"`
}

var (
	locations = []string{"Kadikoy, Istanbul", "Besiktas, Istanbul", "Cankaya, Ankara", "Konak, Izmir", "Nilufer, Bursa"}
	tasks     = map[string][]string{
		domain.CategoryCleaning:  {"Deep clean a two bedroom flat", "Window cleaning for a shop front", "Post renovation cleanup"},
		domain.CategoryGardening: {"Mow the back lawn", "Trim hedges along the fence", "Plant spring bulbs"},
		domain.CategoryPetCare:   {"Walk a friendly labrador", "Cat sitting for a long weekend", "Bathe and brush two dogs"},
		domain.CategoryHandyman:  {"Assemble flat pack wardrobe", "Fix a leaking kitchen tap", "Mount a TV on the wall"},
		domain.CategoryTutoring:  {"Maths tutoring for grade nine", "Conversational English practice", "Guitar lessons for a beginner"},
		domain.CategoryDelivery:  {"Pick up groceries from the market", "Deliver a parcel across town", "Move boxes to a storage unit"},
		domain.CategoryOther:     {"Help set up a birthday party", "Queue for concert tickets", "Photograph a small event"},
	}
)

func main() {
	if err := run(); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	if err := pkgconfig.LoadDotenv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	var sc seedConfig
	if err := pkgconfig.Load(&sc); err != nil {
		return err
	}

	log := logger.New("smalljobs-seed", cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresConfig(), log)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	store := postgres.NewStore(pool, database.NewGuard(cfg.GuardConfig(), log))
	// Low bcrypt cost: seeded accounts are throwaway.
	users := service.NewUserService(store, auth.NewHasher(bcrypt.MinCost), auth.NewJWTManager(cfg.JWTSecret, time.Hour), nil, log)
	jobs := service.NewJobService(store, nil, log, cfg.JobTitleUnique)

	s := &seeder{users: users, jobs: jobs, rnd: rand.New(rand.NewSource(sc.RandSeed)), log: log}
	return s.seed(ctx, sc)
}

type seeder struct {
	users *service.UserService
	jobs  *service.JobService
	rnd   *rand.Rand
	log   *slog.Logger
}

func (s *seeder) seed(ctx context.Context, sc seedConfig) error {
	customers, err := s.accounts(ctx, domain.RoleCustomer, sc.Customers)
	if err != nil {
		return err
	}
	providers, err := s.accounts(ctx, domain.RoleProvider, sc.Providers)
	if err != nil {
		return err
	}
	if len(customers) == 0 || len(providers) == 0 {
		return errors.New("seed needs at least one customer and one provider")
	}

	var posted, completed int
	categories := domain.ValidCategories()
	for i := 0; i < sc.Jobs; i++ {
		owner := customers[s.rnd.Intn(len(customers))]
		category := categories[s.rnd.Intn(len(categories))]
		choices := tasks[category]

		job, err := s.jobs.Create(ctx, owner, domain.JobInput{
			Title:        fmt.Sprintf("%s #%d", choices[s.rnd.Intn(len(choices))], i+1),
			Category:     category,
			Description:  "Seeded demo job. Details are shared with the accepted applicant.",
			Price:        float64(20 + s.rnd.Intn(40)*5),
			Location:     locations[s.rnd.Intn(len(locations))],
			Deadline:     time.Now().UTC().AddDate(0, 0, 7+s.rnd.Intn(60)),
			Requirements: []string{"Be on time", "Bring your own tools"},
			Tags:         []string{"demo"},
		})
		if errors.Is(err, apperrors.ErrConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create job %d: %w", i+1, err)
		}
		posted++

		// Roughly a third of jobs go through the full lifecycle.
		if s.rnd.Intn(3) != 0 {
			continue
		}
		if err := s.complete(ctx, job, owner, providers[s.rnd.Intn(len(providers))]); err != nil {
			return err
		}
		completed++
	}

	s.log.Info("seed completed",
		slog.Int("customers", len(customers)),
		slog.Int("providers", len(providers)),
		slog.Int("jobs", posted),
		slog.Int("reviewed", completed),
	)
	return nil
}

// complete applies, accepts and cross-reviews so ratings are populated.
func (s *seeder) complete(ctx context.Context, job *domain.Job, owner, provider string) error {
	if _, err := s.jobs.Apply(ctx, provider, job.ID); err != nil {
		return fmt.Errorf("apply to %s: %w", job.ID, err)
	}
	if _, err := s.jobs.Decide(ctx, owner, job.ID, provider, domain.ApplicationAccepted); err != nil {
		return fmt.Errorf("accept on %s: %w", job.ID, err)
	}
	if _, err := s.jobs.Review(ctx, provider, job.ID, 3+s.rnd.Intn(3), "Clear brief and quick payment."); err != nil {
		return fmt.Errorf("review job %s: %w", job.ID, err)
	}
	_, err := s.users.Review(ctx, owner, provider, 2+s.rnd.Intn(4), "Did what was asked.")
	if err != nil && !errors.Is(err, apperrors.ErrConflict) {
		return fmt.Errorf("review user %s: %w", provider, err)
	}
	return nil
}

// accounts registers n users of role, logging in instead when a previous run
// already created them.
func (s *seeder) accounts(ctx context.Context, role string, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("seed-%s-%03d@example.com", role, i)
		res, err := s.users.Register(ctx, domain.RegisterInput{
			Name:     fmt.Sprintf("Demo %s %d", role, i),
			Email:    email,
			Password: seedPassword,
			Phone:    fmt.Sprintf("+90 555 %03d %04d", i, s.rnd.Intn(10000)),
			Address:  locations[i%len(locations)],
			Role:     role,
		})
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			res, err = s.users.Login(ctx, email, seedPassword)
		}
		if err != nil {
			return nil, fmt.Errorf("seed %s %d: %w", role, i, err)
		}
		ids = append(ids, res.User.ID)
	}
	return ids, nil
}
