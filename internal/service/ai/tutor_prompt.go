package ai

import (
	"fmt"
	"strings"

	"github.com/stemforge/stem-forge/backend/internal/model/subject"
)

// PromptTemplate defines the sections of the tutor's system frame
type PromptTemplate struct {
	Preamble        string
	CorePrinciples  []string
	FormattingRules []string
	ResponseRules   []string
	Closing         string
}

// TutorPromptManager renders the system frame and the task prompts
type TutorPromptManager struct {
	template *PromptTemplate
	subjects subject.Store
}

// NewTutorPromptManager creates a new prompt manager with the default tutor template
func NewTutorPromptManager(subjects subject.Store) *TutorPromptManager {
	if subjects == nil {
		subjects = subject.NewMemoryStore(subject.Seed())
	}
	return &TutorPromptManager{
		template: defaultTutorTemplate(),
		subjects: subjects,
	}
}

// BuildSystemPrompt creates the system frame sent ahead of every conversation
func (pm *TutorPromptManager) BuildSystemPrompt() string {
	t := pm.template
	subjects := pm.subjects.List()

	names := make([]string, 0, len(subjects))
	expertise := make([]string, 0, len(subjects))
	for _, s := range subjects {
		names = append(names, s.Name)
		expertise = append(expertise, fmt.Sprintf("- %s: %s", s.Name, strings.Join(s.Areas, ", ")))
	}

	var b strings.Builder
	fmt.Fprintf(&b, t.Preamble, strings.Join(names, ", "))
	b.WriteString("\n\n**CORE PRINCIPLES:**\n")
	writeBullets(&b, t.CorePrinciples)
	b.WriteString("\n**FORMATTING RULES:**\n")
	writeNumbered(&b, t.FormattingRules)
	b.WriteString("\n**RESPONSE RULES:**\n")
	writeNumbered(&b, t.ResponseRules)
	b.WriteString("\n**SUBJECTS EXPERTISE:**\n")
	b.WriteString(strings.Join(expertise, "\n"))
	b.WriteString("\n\n")
	b.WriteString(t.Closing)
	return b.String()
}

func writeBullets(b *strings.Builder, items []string) {
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

// FlashcardPrompt asks for an explanation of a single flashcard.
func (pm *TutorPromptManager) FlashcardPrompt(question, answer, subjectName string) string {
	return fmt.Sprintf(`As a STEM tutor, provide a clear, educational explanation for this flashcard:

**Subject:** %s
**Question:** %s
**Answer:** %s

Please explain:
1. Why this answer is correct
2. Key concepts involved
3. A practical example or application
4. Common mistakes students make with this topic

Keep it concise but educational (2-3 paragraphs maximum).`, subjectName, question, answer)
}

// StudyHintsPrompt asks for study tips over a set of questions.
func (pm *TutorPromptManager) StudyHintsPrompt(questions []string, subjectName string) string {
	bullets := make([]string, 0, len(questions))
	for _, q := range questions {
		if q != "" {
			bullets = append(bullets, "• "+q)
		}
	}

	return fmt.Sprintf(`As a STEM tutor, provide study tips for these %s topics:

%s

Give 3-4 practical study tips that would help students master these concepts.
Focus on effective learning strategies, common connections between topics, and memory techniques.`,
		subjectName, strings.Join(bullets, "\n"))
}

// ConceptPrompt asks for a short explanation pitched at difficulty.
func (pm *TutorPromptManager) ConceptPrompt(concept, subjectName, difficulty string) string {
	return fmt.Sprintf(`Explain the concept of "%s" in %s for a %s level student.

Requirements:
- Use simple, clear language
- Provide a real-world analogy if possible
- Give a practical example
- Keep it under 150 words`, concept, subjectName, difficulty)
}

// PracticePrompt asks for count worked problems on topic.
func (pm *TutorPromptManager) PracticePrompt(topic, subjectName string, count int) string {
	return fmt.Sprintf(`Create %d practice problems for the topic "%s" in %s.

For each problem:
1. State the problem clearly
2. Provide the solution
3. Explain the key steps

Make problems progressively more challenging.
Format with clear numbering and spacing.`, count, topic, subjectName)
}

// CoursePrompt asks for a JSON course outline.
func (pm *TutorPromptManager) CoursePrompt(topic, subjectName, difficulty string, lessons int) string {
	return fmt.Sprintf(`Create a structured %s-level course on "%s" in %s with %d lessons.

Return a JSON structure with:
{
    "title": "Course Title",
    "description": "Brief course description",
    "lessons": [
        {
            "id": 1,
            "title": "Lesson Title",
            "description": "Lesson description",
            "duration": "estimated minutes",
            "objectives": ["objective1", "objective2"]
        }
    ]
}

Make lessons progressive, building on each other.
Focus on practical, hands-on learning.`, difficulty, topic, subjectName, lessons)
}

// LessonPrompt asks for the full markdown body of one lesson.
func (pm *TutorPromptManager) LessonPrompt(lessonTitle, courseTopic, subjectName, difficulty string, lessonNumber int) string {
	return fmt.Sprintf(`Create comprehensive lesson content for:

**Course:** %s (%s)
**Lesson %d:** %s
**Level:** %s

Structure the lesson with these sections:

## Learning Objectives
- Clear, measurable objectives

## Introduction
- Hook to engage students
- Connection to previous lessons

## Core Content
### Part 1: Fundamentals (25%%)
- Basic concepts and definitions
- Simple examples

### Part 2: Building Understanding (50%%)
- Detailed explanations
- Step-by-step examples
- Common misconceptions

### Part 3: Application (75%%)
- Practice problems
- Real-world applications

### Part 4: Mastery (100%%)
- Advanced concepts
- Challenge problems
- Synthesis with other topics

## Summary
- Key takeaways
- Preview of next lesson

## Practice Exercises
- 3-5 problems with solutions

Use proper markdown formatting, include examples, and make it engaging for %s level students.
Keep each part focused and build progressively.`,
		courseTopic, subjectName, lessonNumber, lessonTitle, difficulty, difficulty)
}

func defaultTutorTemplate() *PromptTemplate {
	return &PromptTemplate{
		Preamble: "You are an expert STEM tutor specializing in %s. " +
			"Your teaching style is concise, clear, and encouraging.",
		CorePrinciples: []string{
			"Be concise but thorough - aim for 2-4 sentences per response unless more detail is requested",
			"Use clear, simple language appropriate for the student's level",
			"Break down complex concepts into digestible steps",
			"Provide practical examples and real-world applications",
			"Encourage critical thinking with follow-up questions",
			"Be patient, supportive, and encouraging",
		},
		FormattingRules: []string{
			"Use proper markdown formatting for better readability",
			"Use **bold** for emphasis and important points",
			"Use `code` for code snippets, variables, and technical terms",
			"Use ```code blocks``` for multi-line code examples",
			"Use bullet points (• or -) for lists",
			"Use numbered lists for step-by-step instructions",
			"Add proper spacing between sections",
			"Use headers (##) to organize content when appropriate",
		},
		ResponseRules: []string{
			"Start with a brief, direct answer",
			"Follow with a concise explanation",
			"End with a relevant example or follow-up question when appropriate",
			"Use bullet points or numbered lists for multi-step processes",
			"Include relevant formulas or code snippets when needed",
			"Keep responses focused and actionable",
			"If a topic requires extensive explanation, break it into smaller parts",
		},
		Closing: "Keep responses educational, encouraging, and appropriately detailed for the context.",
	}
}
