package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/repository"
)

// BackupVersion is written to every export
const BackupVersion = "1.0"

// BackupData represents the complete database backup structure
type BackupData struct {
	Version     string                     `json:"version"`
	ExportedAt  time.Time                  `json:"exported_at"`
	Users       []UserBackup               `json:"users"`
	Profiles    []models.Profile           `json:"profiles"`
	Catalog     Catalog                    `json:"catalog"`
	Progress    []models.LessonProgress    `json:"lesson_progress"`
	Submissions []models.MissionSubmission `json:"mission_submissions"`
	UserBadges  []UserBadgeBackup          `json:"user_badges"`
	Activity    []models.ActivityLog       `json:"activity_log"`
}

// UserBackup represents a user record for backup, credentials included
type UserBackup struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash"`
	OAuthProvider string    `json:"oauth_provider,omitempty"`
	OAuthSubject  string    `json:"oauth_subject,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserBadgeBackup represents an earned badge for backup
type UserBadgeBackup struct {
	UserID   int64     `json:"user_id"`
	BadgeID  int64     `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// BackupService handles database backup and restore operations
type BackupService struct {
	db       *database.DB
	users    *repository.UserRepository
	profiles *repository.ProfileRepository
	lessons  *repository.LessonRepository
	missions *repository.MissionRepository
	badges   *repository.BadgeRepository
	activity *repository.ActivityRepository
	catalog  *CatalogService
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	lessons := repository.NewLessonRepository(db)
	missions := repository.NewMissionRepository(db)
	badges := repository.NewBadgeRepository(db)
	return &BackupService{
		db:       db,
		users:    repository.NewUserRepository(db),
		profiles: repository.NewProfileRepository(db),
		lessons:  lessons,
		missions: missions,
		badges:   badges,
		activity: repository.NewActivityRepository(db),
		catalog:  NewCatalogService(db, lessons, missions, badges),
	}
}

// Export creates a complete backup of the database to a file
func (s *BackupService) Export(ctx context.Context, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	if err := s.WriteBackup(ctx, file); err != nil {
		return err
	}
	return file.Close()
}

// WriteBackup encodes the whole dataset as JSON to w
func (s *BackupService) WriteBackup(ctx context.Context, w io.Writer) error {
	log.Println("Starting database export...")
	backup, err := s.collect(ctx)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	log.Printf("Exported %d users, %d lessons, %d missions, %d submissions",
		len(backup.Users), len(backup.Catalog.Lessons), len(backup.Catalog.Missions), len(backup.Submissions))
	return nil
}

func (s *BackupService) collect(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{Version: BackupVersion, ExportedAt: time.Now().UTC()}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export users: %w", err)
	}
	for _, u := range users {
		backup.Users = append(backup.Users, UserBackup{
			ID:            u.ID,
			Email:         u.Email,
			PasswordHash:  u.PasswordHash,
			OAuthProvider: u.OAuthProvider,
			OAuthSubject:  u.OAuthSubject,
			CreatedAt:     u.CreatedAt,
		})
	}

	if backup.Profiles, err = s.profiles.ListProfiles(ctx); err != nil {
		return nil, fmt.Errorf("failed to export profiles: %w", err)
	}
	if backup.Catalog.Lessons, err = s.lessons.ListLessons(ctx, true); err != nil {
		return nil, fmt.Errorf("failed to export lessons: %w", err)
	}

	missions, err := s.missions.ListMissions(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to export missions: %w", err)
	}
	for _, m := range missions {
		backup.Catalog.Missions = append(backup.Catalog.Missions, CatalogMission{Mission: m})
	}

	badges, err := s.badges.ListBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export badges: %w", err)
	}
	for _, b := range badges {
		backup.Catalog.Badges = append(backup.Catalog.Badges, CatalogBadge{Badge: b})
	}

	if backup.Progress, err = s.lessons.ListAllProgress(ctx); err != nil {
		return nil, fmt.Errorf("failed to export lesson progress: %w", err)
	}
	if backup.Submissions, err = s.missions.ListAllSubmissions(ctx); err != nil {
		return nil, fmt.Errorf("failed to export submissions: %w", err)
	}

	earned, err := s.badges.ListAllUserBadges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export user badges: %w", err)
	}
	for _, ub := range earned {
		backup.UserBadges = append(backup.UserBadges, UserBadgeBackup{UserID: ub.UserID, BadgeID: ub.Badge.ID, EarnedAt: ub.EarnedAt})
	}

	if backup.Activity, err = s.activity.ListAllActivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to export activity: %w", err)
	}
	return backup, nil
}

// Import restores a backup file, merging it with existing data
func (s *BackupService) Import(ctx context.Context, inputPath string) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()
	return s.ReadBackup(ctx, file)
}

// ReadBackup restores a JSON backup from r in one transaction. Rows get new IDs; users that
// already exist by email keep their current data.
func (s *BackupService) ReadBackup(ctx context.Context, r io.Reader) error {
	var backup BackupData
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return fmt.Errorf("unsupported backup version %q", backup.Version)
	}

	log.Printf("Importing backup from %s...", backup.ExportedAt.Format(time.RFC3339))
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		return s.restore(ctx, tx, &backup)
	})
}

func (s *BackupService) restore(ctx context.Context, tx *database.Tx, backup *BackupData) error {
	users := s.users.WithTx(tx)
	profiles := s.profiles.WithTx(tx)
	lessons := s.lessons.WithTx(tx)
	missions := s.missions.WithTx(tx)
	badges := s.badges.WithTx(tx)
	activity := s.activity.WithTx(tx)

	userIDs := make(map[int64]int64, len(backup.Users))
	created := make(map[int64]bool, len(backup.Users))
	for _, u := range backup.Users {
		existing, err := users.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			userIDs[u.ID] = existing.ID
			continue
		}
		user, err := users.CreateUser(ctx, u.Email, u.PasswordHash)
		if err != nil {
			return fmt.Errorf("failed to import user %d: %w", u.ID, err)
		}
		if u.OAuthProvider != "" && u.OAuthSubject != "" {
			if err := users.LinkOAuthProvider(ctx, user.ID, u.OAuthProvider, u.OAuthSubject); err != nil {
				return fmt.Errorf("failed to import user %d: %w", u.ID, err)
			}
		}
		userIDs[u.ID] = user.ID
		created[user.ID] = true
	}
	log.Printf("Imported %d of %d users", len(created), len(backup.Users))

	// Organizations first so their codes exist before students join them.
	ordered := make([]models.Profile, 0, len(backup.Profiles))
	for _, p := range backup.Profiles {
		if p.IsOrganization() {
			ordered = append(ordered, p)
		}
	}
	for _, p := range backup.Profiles {
		if !p.IsOrganization() {
			ordered = append(ordered, p)
		}
	}
	for _, p := range ordered {
		userID, ok := userIDs[p.UserID]
		if !ok || !created[userID] {
			continue
		}
		p.UserID = userID
		if err := s.restoreProfile(ctx, profiles, &p); err != nil {
			return err
		}
	}

	ids, err := s.catalog.Load(ctx, tx, backup.Catalog)
	if err != nil {
		return fmt.Errorf("failed to import catalog: %w", err)
	}

	for _, p := range backup.Progress {
		userID, lessonID := userIDs[p.UserID], ids.Lessons[p.LessonID]
		if !created[userID] || lessonID == 0 {
			continue
		}
		p.UserID, p.LessonID = userID, lessonID
		if err := lessons.ImportProgress(ctx, &p); err != nil {
			return err
		}
	}

	for _, sub := range backup.Submissions {
		userID, missionID := userIDs[sub.UserID], ids.Missions[sub.MissionID]
		if !created[userID] || missionID == 0 {
			continue
		}
		sub.UserID, sub.MissionID = userID, missionID
		if sub.ReviewerID != nil {
			if reviewerID, ok := userIDs[*sub.ReviewerID]; ok {
				sub.ReviewerID = &reviewerID
			} else {
				sub.ReviewerID = nil
			}
		}
		if err := missions.ImportSubmission(ctx, &sub); err != nil {
			return err
		}
	}

	for _, ub := range backup.UserBadges {
		userID, badgeID := userIDs[ub.UserID], ids.Badges[ub.BadgeID]
		if !created[userID] || badgeID == 0 {
			continue
		}
		if _, err := badges.AwardBadge(ctx, userID, badgeID, ub.EarnedAt); err != nil {
			return err
		}
	}

	for _, entry := range backup.Activity {
		userID := userIDs[entry.UserID]
		if !created[userID] {
			continue
		}
		entry.UserID = userID
		if err := activity.LogActivity(ctx, &entry); err != nil {
			return err
		}
	}

	log.Printf("Imported %d profiles, %d lessons, %d missions, %d badges",
		len(created), len(backup.Catalog.Lessons), len(backup.Catalog.Missions), len(backup.Catalog.Badges))
	return nil
}

func (s *BackupService) restoreProfile(ctx context.Context, profiles *repository.ProfileRepository, p *models.Profile) error {
	if p.IsOrganization() && p.IsAffiliated() {
		taken, err := profiles.OrganizationCodeExists(ctx, p.OrganizationCode)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("organization code %s of user %d already exists", p.OrganizationCode, p.UserID)
		}
	}

	var org *models.Profile
	if !p.IsOrganization() && p.IsAffiliated() {
		var err error
		org, err = profiles.GetOrganizationByCode(ctx, p.OrganizationCode)
		if err != nil {
			return err
		}
		if org == nil {
			p.OrganizationCode = ""
			p.OrganizationName = ""
		}
	}

	if err := profiles.CreateProfile(ctx, p); err != nil {
		return fmt.Errorf("failed to import profile %d: %w", p.UserID, err)
	}

	if p.IsOrganization() && p.IsAffiliated() {
		return profiles.CreateOrganizationCode(ctx, p.OrganizationCode, p.UserID)
	}
	if org != nil {
		return profiles.CreateMembership(ctx, p.UserID, p.OrganizationCode)
	}
	return nil
}

// ClearTables lists every data table, children before parents
var ClearTables = []string{
	"activity_log",
	"user_badges",
	"mission_submissions",
	"lesson_videos",
	"lesson_progress",
	"organization_memberships",
	"organization_codes",
	"profiles",
	"password_reset_tokens",
	"sessions",
	"users",
	"badges",
	"missions",
	"lessons",
}

// Clear deletes all data except the bad word list
func (s *BackupService) Clear(ctx context.Context) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range ClearTables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
			log.Printf("Cleared table: %s", table)
		}
		return nil
	})
}
