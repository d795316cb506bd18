package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/search"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded profile
const DefaultPassword = "orkut123"

// Options sizes a development seed
type Options struct {
	Profiles    int
	Communities int
	Friendships int
	Posts       int
	Messages    int
}

// Result counts what a seed created
type Result struct {
	Profiles    int
	Communities int
	Friendships int
	Posts       int
	Messages    int
}

// Seeder handles database seeding operations
type Seeder struct {
	db     *gorm.DB
	search *search.Service
	rng    *rand.Rand
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	seed := time.Now().UnixNano()
	// Seed returns an error only for invalid sources
	_ = gofakeit.Seed(seed)
	return &Seeder{db: db, rng: rand.New(rand.NewSource(seed))}
}

// SetSearch makes the seeder index what it creates
func (s *Seeder) SetSearch(svc *search.Service) {
	s.search = svc
}

// SeedDev fills the database with fake profiles and their social graph
func (s *Seeder) SeedDev(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	logger.Log.Info("Creating profiles...")
	profiles, err := s.seedProfiles(ctx, opts.Profiles)
	if err != nil {
		return nil, fmt.Errorf("failed to seed profiles: %w", err)
	}
	result.Profiles = len(profiles)
	if len(profiles) < 2 {
		return result, nil
	}

	logger.Log.Info("Creating communities...")
	communities, err := s.seedCommunities(ctx, profiles, opts.Communities)
	if err != nil {
		return nil, fmt.Errorf("failed to seed communities: %w", err)
	}
	result.Communities = len(communities)

	logger.Log.Info("Creating friendships...")
	if result.Friendships, err = s.seedFriendships(ctx, profiles, opts.Friendships); err != nil {
		return nil, fmt.Errorf("failed to seed friendships: %w", err)
	}

	logger.Log.Info("Creating posts...")
	if result.Posts, err = s.seedPosts(ctx, profiles, communities, opts.Posts); err != nil {
		return nil, fmt.Errorf("failed to seed posts: %w", err)
	}

	logger.Log.Info("Creating messages...")
	if result.Messages, err = s.seedMessages(ctx, profiles, opts.Messages); err != nil {
		return nil, fmt.Errorf("failed to seed messages: %w", err)
	}

	logger.Log.Info("Seed complete",
		zap.Int("profiles", result.Profiles),
		zap.Int("communities", result.Communities),
		zap.Int("friendships", result.Friendships),
		zap.Int("posts", result.Posts),
		zap.Int("messages", result.Messages))
	return result, nil
}

// SeedTest creates a few fixed profiles who are all friends with each other
// and the demo catalogue. Running it twice changes nothing.
func (s *Seeder) SeedTest(ctx context.Context) error {
	testProfiles := []struct {
		username    string
		email       string
		displayName string
	}{
		{"alice", "alice@example.com", "Alice Souza"},
		{"bruno", "bruno@example.com", "Bruno Lima"},
		{"carla", "carla@example.com", "Carla Dias"},
	}

	hash, err := hashPassword()
	if err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	var profiles []models.Profile
	for _, tp := range testProfiles {
		var profile models.Profile
		err := db.Where("username = ? OR email = ?", tp.username, tp.email).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.Profile{
				Email:        tp.email,
				Username:     tp.username,
				DisplayName:  tp.displayName,
				PasswordHash: &hash,
				PhotoURL:     avatarURL(tp.username),
				Bio:          "Perfil de teste",
			}
			if err := db.Create(&profile).Error; err != nil {
				return fmt.Errorf("failed to create test profile %s: %w", tp.username, err)
			}
			s.indexProfile(ctx, &profile)
		} else if err != nil {
			return err
		}
		profiles = append(profiles, profile)
	}

	for i := range profiles {
		for j := i + 1; j < len(profiles); j++ {
			if _, err := s.befriend(ctx, profiles[i].ID, profiles[j].ID, models.FriendshipAccepted); err != nil {
				return err
			}
		}
	}

	for _, c := range DemoCommunities() {
		c := c
		c.ID = ""
		c.Owner = profiles[0].Username
		if _, err := s.createCommunity(ctx, &c); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes every row the seeder can create (use with caution!)
func (s *Seeder) Clean(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	// Delete in reverse order of dependencies
	for _, model := range []interface{}{
		&models.Notification{},
		&models.Message{},
		&models.Post{},
		&models.Call{},
		&models.Friendship{},
		&models.Community{},
		&models.ActivityEntry{},
		&models.Profile{},
	} {
		if err := db.Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clean %T: %w", model, err)
		}
	}
	return nil
}

func hashPassword() (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func avatarURL(username string) string {
	return fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/png?seed=%s", username)
}

var relationships = []string{"solteiro(a)", "namorando", "casado(a)", "enrolado(a)"}

// seedProfiles creates count profiles with unique usernames and emails
func (s *Seeder) seedProfiles(ctx context.Context, count int) ([]models.Profile, error) {
	db := s.db.WithContext(ctx)
	hash, err := hashPassword()
	if err != nil {
		return nil, err
	}

	profiles := make([]models.Profile, 0, count)
	for i := 0; i < count; i++ {
		username := strings.ToLower(gofakeit.Username())
		email := gofakeit.Email()

		// Ensure unique username/email
		for attempt := 0; ; attempt++ {
			var n int64
			if err := db.Model(&models.Profile{}).Where("username = ? OR email = ?", username, email).Count(&n).Error; err != nil {
				return nil, err
			}
			if n == 0 {
				break
			}
			username = fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), attempt)
			email = fmt.Sprintf("%d.%s", attempt, gofakeit.Email())
		}

		lastSeen := gofakeit.DateRange(time.Now().AddDate(0, 0, -30), time.Now())
		profile := models.Profile{
			Email:        email,
			Username:     username,
			DisplayName:  gofakeit.Name(),
			PhotoURL:     avatarURL(username),
			Bio:          gofakeit.HipsterSentence(),
			Location:     fmt.Sprintf("%s, %s", gofakeit.City(), gofakeit.Country()),
			Relationship: relationships[s.rng.Intn(len(relationships))],
			PasswordHash: &hash,
			LastSeenAt:   &lastSeen,
		}
		if err := db.Create(&profile).Error; err != nil {
			return nil, fmt.Errorf("failed to create profile: %w", err)
		}
		s.indexProfile(ctx, &profile)
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// seedCommunities creates count communities owned by random profiles
func (s *Seeder) seedCommunities(ctx context.Context, owners []models.Profile, count int) ([]models.Community, error) {
	communities := make([]models.Community, 0, count)
	for i := 0; i < count; i++ {
		owner := owners[s.rng.Intn(len(owners))]
		name := communityName(fmt.Sprintf("%s %s", gofakeit.Adjective(), gofakeit.Noun()))
		visibility := []string{models.VisibilityPublic, models.VisibilityPublic, models.VisibilityRestricted, models.VisibilityPrivate}[s.rng.Intn(4)]

		c := models.Community{
			Name:                 name,
			Description:          gofakeit.HipsterSentence(),
			Category:             Categories[s.rng.Intn(len(Categories))],
			PhotoURL:             DefaultCommunityPhoto,
			MembersCount:         s.rng.Intn(5000) + 1,
			Owner:                owner.Username,
			Visibility:           visibility,
			JoinApprovalRequired: visibility != models.VisibilityPublic,
			Rules:                DefaultRules,
			WelcomeMessage:       WelcomeMessage(name),
			Tags:                 models.StringArray{gofakeit.Hobby()},
			IsActive:             true,
		}
		created, err := s.createCommunity(ctx, &c)
		if err != nil {
			return nil, err
		}
		if created {
			communities = append(communities, c)
		}
	}
	return communities, nil
}

// communityName keeps generated names within the 3..50 limit
func communityName(name string) string {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		name = "Comunidade " + name
	}
	if r := []rune(name); len(r) > 50 {
		name = strings.TrimSpace(string(r[:50]))
	}
	return name
}

// createCommunity inserts c unless the name is taken
func (s *Seeder) createCommunity(ctx context.Context, c *models.Community) (bool, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.Community{}).Where("name = ?", c.Name).Count(&n).Error; err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if err := db.Create(c).Error; err != nil {
		return false, fmt.Errorf("failed to create community %q: %w", c.Name, err)
	}
	if s.search != nil {
		s.search.IndexCommunity(ctx, c)
	}
	return true, nil
}

// seedFriendships links random pairs, mostly accepted with some pending
func (s *Seeder) seedFriendships(ctx context.Context, profiles []models.Profile, count int) (int, error) {
	created := 0
	for i := 0; i < count*3 && created < count; i++ {
		a := profiles[s.rng.Intn(len(profiles))]
		b := profiles[s.rng.Intn(len(profiles))]
		if a.ID == b.ID {
			continue
		}
		status := models.FriendshipAccepted
		if s.rng.Float32() < 0.25 {
			status = models.FriendshipPending
		}
		ok, err := s.befriend(ctx, a.ID, b.ID, status)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// befriend creates the pair's row unless one exists
func (s *Seeder) befriend(ctx context.Context, requesterID, addresseeID string, status models.FriendshipStatus) (bool, error) {
	db := s.db.WithContext(ctx)
	var n int64
	err := db.Model(&models.Friendship{}).
		Where("pair_key = ?", models.FriendshipPairKey(requesterID, addresseeID)).
		Count(&n).Error
	if err != nil || n > 0 {
		return false, err
	}

	f := models.Friendship{RequesterID: requesterID, AddresseeID: addresseeID, Status: status}
	if err := db.Create(&f).Error; err != nil {
		return false, fmt.Errorf("failed to create friendship: %w", err)
	}
	if status == models.FriendshipPending {
		note := models.Notification{
			ProfileID:     addresseeID,
			FromProfileID: requesterID,
			Type:          models.NotificationFriendRequest,
			Title:         "Nova solicitação de amizade",
			Message:       "Você recebeu uma solicitação de amizade",
			ActionURL:     "/amigos",
			RelatedID:     f.ID,
		}
		if err := db.Create(&note).Error; err != nil {
			return false, err
		}
	}
	return true, nil
}

// seedPosts writes scraps, a third of them inside communities
func (s *Seeder) seedPosts(ctx context.Context, profiles []models.Profile, communities []models.Community, count int) (int, error) {
	db := s.db.WithContext(ctx)
	for i := 0; i < count; i++ {
		post := models.Post{
			AuthorID:   profiles[s.rng.Intn(len(profiles))].ID,
			Content:    gofakeit.HipsterSentence(),
			LikesCount: s.rng.Intn(50),
			CreatedAt:  gofakeit.DateRange(time.Now().AddDate(0, -3, 0), time.Now()),
		}
		if len(communities) > 0 && s.rng.Intn(3) == 0 {
			id := communities[s.rng.Intn(len(communities))].ID
			post.CommunityID = &id
		}
		if err := db.Create(&post).Error; err != nil {
			return i, fmt.Errorf("failed to create post: %w", err)
		}
	}
	return count, nil
}

// seedMessages writes direct messages between random pairs
func (s *Seeder) seedMessages(ctx context.Context, profiles []models.Profile, count int) (int, error) {
	db := s.db.WithContext(ctx)
	created := 0
	for i := 0; i < count; i++ {
		from := profiles[s.rng.Intn(len(profiles))]
		to := profiles[s.rng.Intn(len(profiles))]
		if from.ID == to.ID {
			continue
		}
		msg := models.Message{
			FromProfileID: from.ID,
			ToProfileID:   to.ID,
			Content:       gofakeit.HipsterSentence(),
			CreatedAt:     gofakeit.DateRange(time.Now().AddDate(0, 0, -14), time.Now()),
		}
		if s.rng.Intn(2) == 0 {
			readAt := msg.CreatedAt.Add(time.Duration(s.rng.Intn(3600)) * time.Second)
			msg.ReadAt = &readAt
		}
		if err := db.Create(&msg).Error; err != nil {
			return created, fmt.Errorf("failed to create message: %w", err)
		}
		created++
	}
	return created, nil
}

func (s *Seeder) indexProfile(ctx context.Context, p *models.Profile) {
	if s.search != nil {
		s.search.IndexProfile(ctx, p)
	}
}
