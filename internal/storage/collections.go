package storage

// Collections 为各集合名称，均可通过配置修改。
type Collections struct {
	Jobs           string `yaml:"jobs" json:"jobs"`
	GovernmentJobs string `yaml:"government_jobs" json:"government_jobs"`
	Applications   string `yaml:"applications" json:"applications"`
	Applied        string `yaml:"applied" json:"applied"`
	Tasks          string `yaml:"tasks" json:"tasks"`
	Students       string `yaml:"students" json:"students"`
	Employers      string `yaml:"employers" json:"employers"`
	Admins         string `yaml:"admins" json:"admins"`
	Settings       string `yaml:"settings" json:"settings"`
}

// WithDefaults 为未配置的集合填充默认名称。
func (c Collections) WithDefaults() Collections {
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.Jobs, "jobs")
	fill(&c.GovernmentJobs, "government_jobs")
	fill(&c.Applications, "applications")
	fill(&c.Applied, "applied")
	fill(&c.Tasks, "tasks")
	fill(&c.Students, "students")
	fill(&c.Employers, "employers")
	fill(&c.Admins, "admins")
	fill(&c.Settings, "settings")
	return c
}
