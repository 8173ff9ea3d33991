package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/stemforge/stem-forge/backend/internal/model/course"
)

// jsonObjectPattern grabs the outermost {...} span of a model answer, which
// usually wraps the JSON in prose or a fenced block.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// parseCourse extracts a course outline from a free-form model answer.
func parseCourse(answer string) (course.Course, error) {
	raw := jsonObjectPattern.FindString(answer)
	if raw == "" {
		return course.Course{}, errors.New("no JSON object in answer")
	}

	var c course.Course
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return course.Course{}, errors.Wrap(err, "decode course outline")
	}
	if strings.TrimSpace(c.Title) == "" {
		return course.Course{}, errors.New("course outline has no title")
	}
	if len(c.Lessons) == 0 {
		return course.Course{}, errors.New("course outline has no lessons")
	}
	return c, nil
}

// fallbackCourse is served when the model did not return a usable outline.
func fallbackCourse(topic, difficulty string, lessons int) course.Course {
	lessons = clampLessons(lessons)
	c := course.Course{
		Title:       fmt.Sprintf("%s Course", topic),
		Description: fmt.Sprintf("A comprehensive %s-level course on %s", difficulty, topic),
		Lessons:     make([]course.Lesson, 0, lessons),
	}
	for i := 1; i <= lessons; i++ {
		title := fmt.Sprintf("Lesson %d: Advanced %s", i, topic)
		if i == 1 {
			title = fmt.Sprintf("Lesson %d: Introduction to %s", i, topic)
		}
		c.Lessons = append(c.Lessons, course.Lesson{
			ID:          course.FlexString(strconv.Itoa(i)),
			Title:       title,
			Description: fmt.Sprintf("Learn the fundamentals of %s", topic),
			Duration:    "30-45 minutes",
			Objectives: []string{
				fmt.Sprintf("Understand %s basics", topic),
				fmt.Sprintf("Apply %s concepts", topic),
			},
		})
	}
	return c
}

func courseFromAnswer(answer, topic, difficulty string, lessons int) course.Course {
	c, err := parseCourse(answer)
	if err != nil {
		log.Info().Err(err).Str("topic", topic).Msg("ai: course outline unusable, serving fallback")
		return fallbackCourse(topic, difficulty, lessons)
	}
	return c
}
