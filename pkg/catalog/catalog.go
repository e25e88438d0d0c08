// Package catalog holds the static progression configuration: the rank table,
// the lesson/task registry and the weekly challenge catalog.
package catalog

import (
	"sort"
)

// LessonType is the kind of onboarding unit.
type LessonType string

const (
	LessonCourse LessonType = "course"
	LessonTask   LessonType = "task"
	LessonQuiz   LessonType = "quiz"
)

// Auto requirement kinds, evaluated by the login reconciliation sweep.
const (
	AutoLoginDays   = "login_days"
	AutoLoginStreak = "login_streak"
)

// Rank is one entry of the ordered rank table.
type Rank struct {
	Name           string  `yaml:"name" json:"name"`
	XPThreshold    int64   `yaml:"xp_threshold" json:"xp_threshold"`
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate"`
	// RequiredTaskIDs must be completed to be promoted into this rank.
	RequiredTaskIDs []string `yaml:"required_task_ids" json:"required_task_ids"`
	Capabilities    []string `yaml:"capabilities" json:"capabilities"`
}

// AutoRequirement marks a task the system completes on the seller's behalf.
type AutoRequirement struct {
	Kind   string `yaml:"kind" json:"kind"`
	Target int    `yaml:"target" json:"target"`
}

// Lesson is a course, task or quiz in the onboarding funnel.
type Lesson struct {
	ID           string           `yaml:"id" json:"id"`
	Title        string           `yaml:"title" json:"title"`
	Stage        int              `yaml:"stage" json:"stage"`
	RankRequired string           `yaml:"rank_required" json:"rank_required"`
	Type         LessonType       `yaml:"type" json:"type"`
	XPReward     int64            `yaml:"xp_reward" json:"xp_reward"`
	OrderIndex   int              `yaml:"order_index" json:"order_index"`
	Auto         *AutoRequirement `yaml:"auto,omitempty" json:"auto,omitempty"`
}

// Requirement is what a weekly challenge asks for.
type Requirement struct {
	Type   string `yaml:"type" json:"type"`
	Target int    `yaml:"target" json:"target"`
}

// Challenge is a weekly bonus objective.
type Challenge struct {
	ID          string      `yaml:"id" json:"id"`
	Title       string      `yaml:"title" json:"title"`
	WeekNumber  int         `yaml:"week_number" json:"week_number"`
	RankScope   string      `yaml:"rank_scope" json:"rank_scope"`
	Requirement Requirement `yaml:"requirement" json:"requirement"`
	XPReward    int64       `yaml:"xp_reward" json:"xp_reward"`
}

// Catalog is the immutable configuration loaded at process start.
type Catalog struct {
	Ranks      []Rank      `yaml:"ranks"`
	Lessons    []Lesson    `yaml:"lessons"`
	Challenges []Challenge `yaml:"challenges"`

	rankIndex   map[string]int
	lessonIndex map[string]int
}

// index builds the lookup maps. Called once after loading.
func (c *Catalog) index() {
	c.rankIndex = make(map[string]int, len(c.Ranks))
	for i, r := range c.Ranks {
		c.rankIndex[r.Name] = i
	}
	c.lessonIndex = make(map[string]int, len(c.Lessons))
	for i, l := range c.Lessons {
		c.lessonIndex[l.ID] = i
	}
}

// FirstRank returns the entry rank every new seller starts at.
func (c *Catalog) FirstRank() Rank {
	return c.Ranks[0]
}

// RankIndex returns the position of the named rank in the table.
func (c *Catalog) RankIndex(name string) (int, bool) {
	i, ok := c.rankIndex[name]
	return i, ok
}

// Rank returns the named rank.
func (c *Catalog) Rank(name string) (Rank, bool) {
	i, ok := c.rankIndex[name]
	if !ok {
		return Rank{}, false
	}
	return c.Ranks[i], true
}

// NextRank returns the rank immediately after name. ok is false at the top rank
// or when name is unknown.
func (c *Catalog) NextRank(name string) (Rank, bool) {
	i, ok := c.rankIndex[name]
	if !ok || i+1 >= len(c.Ranks) {
		return Rank{}, false
	}
	return c.Ranks[i+1], true
}

// HigherRank returns whichever of a and b sits higher in the table.
// Unknown names lose to known ones.
func (c *Catalog) HigherRank(a, b string) string {
	ia, okA := c.rankIndex[a]
	ib, okB := c.rankIndex[b]
	switch {
	case !okA:
		return b
	case !okB:
		return a
	case ib > ia:
		return b
	default:
		return a
	}
}

// Lesson returns the lesson with the given id.
func (c *Catalog) Lesson(id string) (Lesson, bool) {
	i, ok := c.lessonIndex[id]
	if !ok {
		return Lesson{}, false
	}
	return c.Lessons[i], true
}

// RequiredTasks returns the cumulative task and quiz ids needed to hold rankName:
// the union of RequiredTaskIDs of that rank and every rank below it.
// Course lessons never gate advancement and are left out.
func (c *Catalog) RequiredTasks(rankName string) []string {
	top, ok := c.rankIndex[rankName]
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for i := 0; i <= top; i++ {
		for _, id := range c.Ranks[i].RequiredTaskIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if l, ok := c.Lesson(id); ok && l.Type == LessonCourse {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// LessonsForRank returns the lessons attached to a rank ordered by stage and order index.
func (c *Catalog) LessonsForRank(rankName string) []Lesson {
	var lessons []Lesson
	for _, l := range c.Lessons {
		if l.RankRequired == rankName {
			lessons = append(lessons, l)
		}
	}
	sort.SliceStable(lessons, func(i, j int) bool {
		if lessons[i].Stage != lessons[j].Stage {
			return lessons[i].Stage < lessons[j].Stage
		}
		return lessons[i].OrderIndex < lessons[j].OrderIndex
	})
	return lessons
}

// AutoLessons returns the lessons completed automatically by the login sweep.
func (c *Catalog) AutoLessons() []Lesson {
	var lessons []Lesson
	for _, l := range c.Lessons {
		if l.Auto != nil {
			lessons = append(lessons, l)
		}
	}
	return lessons
}

// ActiveChallenges returns the challenges of a week that apply to rankName.
// A challenge with an empty rank scope applies to every rank.
func (c *Catalog) ActiveChallenges(weekNumber int, rankName string) []Challenge {
	var active []Challenge
	for _, ch := range c.Challenges {
		if ch.WeekNumber != weekNumber {
			continue
		}
		if ch.RankScope != "" && ch.RankScope != rankName {
			continue
		}
		active = append(active, ch)
	}
	return active
}

// Challenge returns the challenge with the given id.
func (c *Catalog) Challenge(id string) (Challenge, bool) {
	for _, ch := range c.Challenges {
		if ch.ID == id {
			return ch, true
		}
	}
	return Challenge{}, false
}

// RequirementTypes returns the distinct requirement types used by the challenges.
func (c *Catalog) RequirementTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, ch := range c.Challenges {
		if !seen[ch.Requirement.Type] {
			seen[ch.Requirement.Type] = true
			types = append(types, ch.Requirement.Type)
		}
	}
	return types
}
