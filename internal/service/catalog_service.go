package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/gosimple/slug"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/repository"
)

// Catalog is the learning content: lessons, missions and badges. Missions and badges refer
// to lessons by slug so a catalog can be loaded into any database.
type Catalog struct {
	Lessons  []models.Lesson  `json:"lessons"`
	Missions []CatalogMission `json:"missions"`
	Badges   []CatalogBadge   `json:"badges"`
}

// CatalogMission is a mission tied to a lesson by slug
type CatalogMission struct {
	models.Mission
	LessonSlug string `json:"lesson_slug,omitempty"`
}

// CatalogBadge is a badge tied to a lesson by slug
type CatalogBadge struct {
	models.Badge
	LessonSlug string `json:"lesson_slug,omitempty"`
}

// CatalogIDs maps the IDs a catalog was exported with to the IDs it got on load
type CatalogIDs struct {
	Lessons  map[int64]int64
	Missions map[int64]int64
	Badges   map[int64]int64
}

// CatalogService loads catalog content
type CatalogService struct {
	db       *database.DB
	lessons  *repository.LessonRepository
	missions *repository.MissionRepository
	badges   *repository.BadgeRepository
}

// NewCatalogService creates a new catalog service
func NewCatalogService(db *database.DB, lessons *repository.LessonRepository, missions *repository.MissionRepository, badges *repository.BadgeRepository) *CatalogService {
	return &CatalogService{
		db:       db,
		lessons:  lessons,
		missions: missions,
		badges:   badges,
	}
}

// LessonSlug returns the slug for a lesson title
func LessonSlug(title string) string {
	return slug.Make(title)
}

// Seed loads the built-in catalog, skipping content that already exists
func (s *CatalogService) Seed(ctx context.Context) error {
	catalog := DefaultCatalog()
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		_, err := s.Load(ctx, tx, catalog)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	log.Printf("Catalog ready: %d lessons, %d missions, %d badges", len(catalog.Lessons), len(catalog.Missions), len(catalog.Badges))
	return nil
}

// Load inserts catalog content in tx. Lessons are matched by slug, missions by title and
// badges by name; matches are reused instead of duplicated.
func (s *CatalogService) Load(ctx context.Context, tx *database.Tx, catalog Catalog) (*CatalogIDs, error) {
	lessons := s.lessons.WithTx(tx)
	missions := s.missions.WithTx(tx)
	badges := s.badges.WithTx(tx)

	ids := &CatalogIDs{
		Lessons:  make(map[int64]int64),
		Missions: make(map[int64]int64),
		Badges:   make(map[int64]int64),
	}
	bySlug := make(map[string]int64)

	for i, lesson := range catalog.Lessons {
		if strings.TrimSpace(lesson.Slug) == "" {
			lesson.Slug = LessonSlug(lesson.Title)
		}
		if lesson.Slug == "" {
			return nil, fmt.Errorf("lesson %d has no title", i)
		}
		existing, err := lessons.GetLessonBySlug(ctx, lesson.Slug)
		if err != nil {
			return nil, err
		}
		oldID := lesson.ID
		if existing != nil {
			lesson.ID = existing.ID
		} else if err := lessons.CreateLesson(ctx, &lesson); err != nil {
			return nil, err
		}
		if oldID != 0 {
			ids.Lessons[oldID] = lesson.ID
		}
		bySlug[lesson.Slug] = lesson.ID
	}

	lessonRef := func(ref string, id *int64) (*int64, error) {
		if ref != "" {
			newID, ok := bySlug[ref]
			if !ok {
				existing, err := lessons.GetLessonBySlug(ctx, ref)
				if err != nil {
					return nil, err
				}
				if existing == nil {
					return nil, fmt.Errorf("unknown lesson %q", ref)
				}
				newID = existing.ID
			}
			return &newID, nil
		}
		if id != nil {
			newID, ok := ids.Lessons[*id]
			if !ok {
				return nil, fmt.Errorf("unknown lesson id %d", *id)
			}
			return &newID, nil
		}
		return nil, nil
	}

	existingMissions, err := missions.ListMissions(ctx, true)
	if err != nil {
		return nil, err
	}
	missionByTitle := make(map[string]int64, len(existingMissions))
	for _, m := range existingMissions {
		missionByTitle[m.Title] = m.ID
	}
	for _, cm := range catalog.Missions {
		m := cm.Mission
		oldID := m.ID
		if m.LessonID, err = lessonRef(cm.LessonSlug, m.LessonID); err != nil {
			return nil, fmt.Errorf("mission %q: %w", m.Title, err)
		}
		if id, ok := missionByTitle[m.Title]; ok {
			m.ID = id
		} else if err := missions.CreateMission(ctx, &m); err != nil {
			return nil, err
		}
		missionByTitle[m.Title] = m.ID
		if oldID != 0 {
			ids.Missions[oldID] = m.ID
		}
	}

	existingBadges, err := badges.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	badgeByName := make(map[string]int64, len(existingBadges))
	for _, b := range existingBadges {
		badgeByName[b.Name] = b.ID
	}
	for _, cb := range catalog.Badges {
		b := cb.Badge
		oldID := b.ID
		if b.LessonID, err = lessonRef(cb.LessonSlug, b.LessonID); err != nil {
			return nil, fmt.Errorf("badge %q: %w", b.Name, err)
		}
		if id, ok := badgeByName[b.Name]; ok {
			b.ID = id
		} else if err := badges.CreateBadge(ctx, &b); err != nil {
			return nil, err
		}
		badgeByName[b.Name] = b.ID
		if oldID != 0 {
			ids.Badges[oldID] = b.ID
		}
	}
	return ids, nil
}

// DefaultCatalog is the starter content loaded into an empty installation
func DefaultCatalog() Catalog {
	return Catalog{
		Lessons: []models.Lesson{
			{
				Title:           "Climate Change Basics",
				Description:     "Learn what drives **climate change** and how everyday choices add up.",
				Category:        "climate",
				Difficulty:      "beginner",
				DurationMinutes: 15,
				OrderIndex:      1,
				IsPublished:     true,
				Content: models.LessonContent{
					VideoURL: "https://www.youtube.com/watch?v=G4H1N_yXBiA",
					Quiz: []models.QuizQuestion{
						{
							ID:            "q1",
							Question:      "Which gas is the main driver of human-caused warming?",
							Options:       []string{"Oxygen", "Carbon dioxide", "Nitrogen", "Helium"},
							CorrectAnswer: 1,
							Explanation:   "Burning fossil fuels releases carbon dioxide that traps heat.",
						},
						{
							ID:            "q2",
							Question:      "What is the greenhouse effect?",
							Options:       []string{"Plants growing faster", "Heat trapped by gases in the atmosphere", "Cooling of the oceans", "Ozone repair"},
							CorrectAnswer: 1,
						},
						{
							ID:            "q3",
							Question:      "Which of these lowers your carbon footprint?",
							Options:       []string{"Cycling to school", "Leaving lights on", "Single-use plastics", "Short car trips"},
							CorrectAnswer: 0,
						},
					},
				},
			},
			{
				Title:           "Waste Segregation at Home",
				Description:     "Sort dry, wet and hazardous waste so more of it can be recycled.",
				Category:        "waste",
				Difficulty:      "beginner",
				DurationMinutes: 10,
				OrderIndex:      2,
				IsPublished:     true,
				Content: models.LessonContent{
					VideoURL: "https://www.youtube.com/watch?v=4JDGFNoY-rQ",
					Quiz: []models.QuizQuestion{
						{
							ID:            "q1",
							Question:      "Vegetable peels belong in which bin?",
							Options:       []string{"Dry waste", "Wet waste", "Hazardous waste"},
							CorrectAnswer: 1,
						},
						{
							ID:            "q2",
							Question:      "Used batteries are",
							Options:       []string{"Wet waste", "Dry waste", "Hazardous waste"},
							CorrectAnswer: 2,
						},
					},
				},
			},
			{
				Title:           "Saving Water",
				Description:     "Simple habits that save hundreds of litres of water every week.",
				Category:        "water",
				Difficulty:      "beginner",
				DurationMinutes: 8,
				OrderIndex:      3,
				IsPublished:     true,
				Content: models.LessonContent{
					VideoURL: "https://www.youtube.com/watch?v=5J3cw4biWWo",
					Quiz: []models.QuizQuestion{
						{
							ID:            "q1",
							Question:      "Turning off the tap while brushing saves up to",
							Options:       []string{"1 litre", "6 litres", "50 litres"},
							CorrectAnswer: 1,
						},
					},
				},
			},
		},
		Missions: []CatalogMission{
			{
				Mission: models.Mission{
					Title:         "Plant a Tree",
					Description:   "Plant a native sapling and record it.",
					Category:      "climate",
					Difficulty:    "medium",
					EstimatedTime: "1 hour",
					Instructions:  "1. Pick a native species\n2. Plant it with an adult\n3. Film the planted sapling",
					Requirements:  []string{"Short video of the planted sapling", "Name of the species"},
					Points:        50,
					IsActive:      true,
				},
				LessonSlug: "climate-change-basics",
			},
			{
				Mission: models.Mission{
					Title:         "Segregate a Week of Waste",
					Description:   "Keep separate dry and wet bins at home for seven days.",
					Category:      "waste",
					Difficulty:    "easy",
					EstimatedTime: "1 week",
					Instructions:  "Set up **two bins** and show them at the end of the week.",
					Requirements:  []string{"Video of both bins"},
					Points:        40,
					IsActive:      true,
				},
				LessonSlug: "waste-segregation-at-home",
			},
			{
				Mission: models.Mission{
					Title:         "Fix a Leaking Tap",
					Description:   "Find a leaking tap at home or school and get it fixed.",
					Category:      "water",
					Difficulty:    "easy",
					EstimatedTime: "30 minutes",
					Instructions:  "Record the tap before and after the fix.",
					Requirements:  []string{"Before and after video"},
					Points:        30,
					IsActive:      true,
				},
			},
		},
		Badges: []CatalogBadge{
			{
				Badge: models.Badge{
					Name:         "First Steps",
					Description:  "Completed your first lesson",
					Category:     "learning",
					Requirements: models.BadgeRequirement{LessonsCompleted: 1},
				},
			},
			{
				Badge: models.Badge{
					Name:        "Climate Champion",
					Description: "Completed Climate Change Basics",
					Category:    "climate",
				},
				LessonSlug: "climate-change-basics",
			},
			{
				Badge: models.Badge{
					Name:         "Mission Ready",
					Description:  "Had a mission approved",
					Category:     "missions",
					Requirements: models.BadgeRequirement{MissionsCompleted: 1},
				},
			},
			{
				Badge: models.Badge{
					Name:         "Eco Star",
					Description:  "Earned 200 eco points",
					Category:     "points",
					Requirements: models.BadgeRequirement{EcoPoints: 200},
				},
			},
			{
				Badge: models.Badge{
					Name:         "On a Roll",
					Description:  "Kept a 7 day streak",
					Category:     "streaks",
					Requirements: models.BadgeRequirement{StreakDays: 7},
				},
			},
		},
	}
}
