package subject

// Subject describes a tutoring domain exposed to the frontend and folded into
// the tutor's system frame.
type Subject struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Areas       []string `json:"areas"`
}

// Seed provides the STEM subjects the tutor is framed to cover.
func Seed() []Subject {
	return []Subject{
		{
			ID:          "mathematics",
			Name:        "Mathematics",
			Description: "Quantity, structure, space and change.",
			Areas:       []string{"Algebra", "Calculus", "Statistics", "Geometry", "Discrete Math"},
		},
		{
			ID:          "physics",
			Name:        "Physics",
			Description: "Matter, energy and the forces between them.",
			Areas:       []string{"Mechanics", "Thermodynamics", "Electromagnetism", "Quantum Physics"},
		},
		{
			ID:          "chemistry",
			Name:        "Chemistry",
			Description: "Composition, structure and reactions of substances.",
			Areas:       []string{"Organic", "Inorganic", "Physical Chemistry", "Biochemistry"},
		},
		{
			ID:          "biology",
			Name:        "Biology",
			Description: "Living organisms and their processes.",
			Areas:       []string{"Cell Biology", "Genetics", "Ecology", "Human Biology"},
		},
		{
			ID:          "computer-science",
			Name:        "Computer Science",
			Description: "Computation, information and software.",
			Areas:       []string{"Programming", "Algorithms", "Data Structures", "Software Engineering"},
		},
		{
			ID:          "engineering",
			Name:        "Engineering",
			Description: "Design and construction of systems and structures.",
			Areas:       []string{"Mechanical", "Electrical", "Civil", "Chemical Engineering"},
		},
	}
}
