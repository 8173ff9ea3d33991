package ai

import (
	"context"
	"strings"

	"github.com/stemforge/stem-forge/backend/internal/model/course"
)

const (
	DefaultSubject        = "General"
	DefaultDifficulty     = "beginner"
	DefaultLessonsCount   = 4
	MaxLessonsCount       = 20
	DefaultLessonNumber   = 1
	DefaultPracticeCount  = 3
	maxStudyHintQuestions = 5
)

// Flashcard is the subset of a study card the tutor reads.
type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
}

// ExplainFlashcard explains why a flashcard's answer is correct.
func (s *Service) ExplainFlashcard(ctx context.Context, question, answer, subjectName string) string {
	return s.Ask(ctx, s.prompts.FlashcardPrompt(question, answer, s.subjectLabel(subjectName)), nil)
}

// StudyHints suggests study tips for the first few questions of a deck.
func (s *Service) StudyHints(ctx context.Context, cards []Flashcard, subjectName string) string {
	questions := make([]string, 0, maxStudyHintQuestions)
	for i, card := range cards {
		if i == maxStudyHintQuestions {
			break
		}
		questions = append(questions, card.Question)
	}
	return s.Ask(ctx, s.prompts.StudyHintsPrompt(questions, s.subjectLabel(subjectName)), nil)
}

// ExplainConcept explains concept at the requested difficulty.
func (s *Service) ExplainConcept(ctx context.Context, concept, subjectName, difficulty string) string {
	return s.Ask(ctx, s.prompts.ConceptPrompt(concept, s.subjectLabel(subjectName), orDefault(difficulty, DefaultDifficulty)), nil)
}

// PracticeProblems generates count worked problems.
func (s *Service) PracticeProblems(ctx context.Context, topic, subjectName string, count int) string {
	if count <= 0 {
		count = DefaultPracticeCount
	}
	return s.Ask(ctx, s.prompts.PracticePrompt(topic, s.subjectLabel(subjectName), count), nil)
}

// CourseStructure asks the model for a course outline and falls back to a
// generated one when the answer cannot be used.
func (s *Service) CourseStructure(ctx context.Context, topic, subjectName, difficulty string, lessons int) course.Course {
	lessons = clampLessons(lessons)
	difficulty = orDefault(difficulty, DefaultDifficulty)

	answer := s.Ask(ctx, s.prompts.CoursePrompt(topic, s.subjectLabel(subjectName), difficulty, lessons), nil)
	return courseFromAnswer(answer, topic, difficulty, lessons)
}

// clampLessons bounds a requested outline length to [1, MaxLessonsCount],
// with non-positive values meaning the default.
func clampLessons(n int) int {
	switch {
	case n <= 0:
		return DefaultLessonsCount
	case n > MaxLessonsCount:
		return MaxLessonsCount
	}
	return n
}

// LessonContent writes the body of a single lesson.
func (s *Service) LessonContent(ctx context.Context, lessonTitle, courseTopic, subjectName, difficulty string, lessonNumber int) string {
	if lessonNumber <= 0 {
		lessonNumber = DefaultLessonNumber
	}
	return s.Ask(ctx, s.prompts.LessonPrompt(
		lessonTitle,
		courseTopic,
		s.subjectLabel(subjectName),
		orDefault(difficulty, DefaultDifficulty),
		lessonNumber,
	), nil)
}

// subjectLabel resolves a subject id to its display name; free-form labels
// pass through unchanged.
func (s *Service) subjectLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSubject
	}
	if found, ok := s.prompts.subjects.FindByID(raw); ok {
		return found.Name
	}
	return raw
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
