package cli

import "livequiz/internal/domain"

// sampleQuestions backs the in-memory loader when Postgres is not configured, and is what
// `migrate --seed` writes.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID:           "demo-q1",
			CourseID:     "demo-course",
			Text:         "Which HTTP status code means Not Found?",
			Options:      []string{"200", "301", "404", "500"},
			CorrectIndex: 2,
		},
		{
			ID:               "demo-q2",
			CourseID:         "demo-course",
			Text:             "Which keyword starts a goroutine in Go?",
			Options:          []string{"async", "go", "spawn", "thread"},
			CorrectIndex:     1,
			TimeLimitSeconds: 15,
		},
		{
			ID:               "demo-q3",
			CourseID:         "demo-course",
			Text:             "What does TLS primarily provide?",
			Options:          []string{"Compression", "Caching", "Encryption in transit", "Load balancing"},
			CorrectIndex:     2,
			TimeLimitSeconds: 30,
		},
		{
			ID:           "demo-q4",
			CourseID:     "demo-course",
			Text:         "Which data structure is FIFO?",
			Options:      []string{"Stack", "Queue", "Tree", "Heap"},
			CorrectIndex: 1,
			ImageURL:     "https://upload.wikimedia.org/wikipedia/commons/5/52/Data_Queue.svg",
		},
	}
}
