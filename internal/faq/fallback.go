package faq

// Fallback returns the fixed FAQ set shown when the database fetch fails.
// Content is never blocked on a resource load: a degraded list beats an
// empty widget. The ids are negative so they can never collide with real
// rows.
func Fallback() []FAQ {
	return []FAQ{
		{
			ID:       -1,
			Category: "Applications",
			Question: "How do I apply for a job?",
			Answer:   "Open a job posting and press Apply. You need a completed resume on your profile before applying.",
		},
		{
			ID:       -2,
			Category: "Resume",
			Question: "How do I build my resume?",
			Answer:   "Go to My Resume from your dashboard and fill in each section. Your progress is saved as you go.",
		},
		{
			ID:       -3,
			Category: "Exams",
			Question: "What happens after I take a screening exam?",
			Answer:   "Your score is sent to the employer together with your application. You will be notified of the result in your inbox.",
		},
	}
}
