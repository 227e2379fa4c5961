package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"resume-search/internal/storage"
)

// WorkStint is one employment interval as read from a document. A nil
// EndDate means the stint is ongoing.
type WorkStint struct {
	Company    string     `json:"company"`
	Department string     `json:"department,omitempty"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// Facts is the structured result of one extraction. Containers are always
// non-nil, even for empty input.
type Facts struct {
	Skills          []string                 `json:"skills"`
	Education       []storage.EducationEntry `json:"education"`
	WorkExperiences []WorkStint              `json:"work_experiences"`
}

// FactExtractor turns raw resume text into structured facts. It is a
// pluggable capability injected at startup; the default is a
// regex/dictionary matcher, a remote NLP collaborator can be swapped in.
type FactExtractor interface {
	Structure(ctx context.Context, rawText string) (Facts, error)
}

// Common skill keywords matched against resume text.
var skillKeywords = []string{
	"Go", "Golang", "Python", "Java", "JavaScript", "TypeScript",
	"React", "Vue", "Angular", "Node.js", "Docker", "Kubernetes",
	"PostgreSQL", "MySQL", "MongoDB", "Redis", "AWS", "Azure", "GCP",
	"GraphQL", "REST", "SQL", "Microservices", "Git", "CI/CD",
	"Machine Learning", "Data Science", "DevOps", "Terraform", "Kafka",
	"C++", "C#", "Rust", "Ruby", "PHP", "Scala", "Swift", "Kotlin",
}

// educationRe matches lines like
// "MIT, Bachelor of Science, Computer Science, 2019".
var educationRe = regexp.MustCompile(`(?i)^\s*([^,]+),\s*((?:bachelor|master|phd|doctor|mba|b\.sc|m\.sc|b\.s\.|m\.s\.)[^,]*),\s*([^,]+),\s*((?:19|20)\d{2})\s*$`)

// workRe matches lines like
// "Acme Corp — Platform, 2019-01 - 2020-06" and
// "Acme Corp, 2022-03 - present".
var workRe = regexp.MustCompile(`^\s*([^,]+?)(?:\s+[–—-]\s+([^,]+?))?,\s*(\d{4}-\d{2})\s*(?:[–—-]|to)\s*(\d{4}-\d{2}|present|current)\s*$`)

type skillPattern struct {
	name string
	re   *regexp.Regexp
}

var skillPatterns = buildSkillPatterns()

func buildSkillPatterns() []skillPattern {
	patterns := make([]skillPattern, 0, len(skillKeywords))
	for _, kw := range skillKeywords {
		// Word-ish boundaries: keywords like "C++" and "Node.js" break \b.
		re := regexp.MustCompile(`(?i)(?:^|[^a-zA-Z0-9+#.])` + regexp.QuoteMeta(kw) + `(?:$|[^a-zA-Z0-9+#])`)
		patterns = append(patterns, skillPattern{name: strings.ToLower(kw), re: re})
	}
	return patterns
}

// RegexStructurer is the default FactExtractor: dictionary skill matching
// plus line-oriented education and work-history patterns.
type RegexStructurer struct{}

func NewRegexStructurer() *RegexStructurer {
	return &RegexStructurer{}
}

func (s *RegexStructurer) Structure(ctx context.Context, rawText string) (Facts, error) {
	facts := Facts{
		Skills:          []string{},
		Education:       []storage.EducationEntry{},
		WorkExperiences: []WorkStint{},
	}
	if strings.TrimSpace(rawText) == "" {
		return facts, nil
	}
	if err := ctx.Err(); err != nil {
		return facts, err
	}

	facts.Skills = matchSkills(rawText)

	for _, line := range strings.Split(rawText, "\n") {
		if m := educationRe.FindStringSubmatch(line); m != nil {
			facts.Education = append(facts.Education, storage.EducationEntry{
				Institution: strings.TrimSpace(m[1]),
				Degree:      strings.TrimSpace(m[2]),
				Field:       strings.TrimSpace(m[3]),
				Year:        atoiYear(m[4]),
			})
			continue
		}
		if m := workRe.FindStringSubmatch(line); m != nil {
			stint, ok := parseStint(m)
			if ok {
				facts.WorkExperiences = append(facts.WorkExperiences, stint)
			}
		}
	}

	return facts, nil
}

// matchSkills returns the normalized lowercase skill set, sorted for
// deterministic output.
func matchSkills(text string) []string {
	seen := make(map[string]bool)
	for _, p := range skillPatterns {
		if p.re.MatchString(text) {
			seen[p.name] = true
		}
	}
	skills := make([]string, 0, len(seen))
	for s := range seen {
		skills = append(skills, s)
	}
	sort.Strings(skills)
	return skills
}

func parseStint(m []string) (WorkStint, bool) {
	start, err := time.Parse("2006-01", m[3])
	if err != nil {
		return WorkStint{}, false
	}
	stint := WorkStint{
		Company:    strings.TrimSpace(m[1]),
		Department: strings.TrimSpace(m[2]),
		StartDate:  start,
	}
	switch strings.ToLower(m[4]) {
	case "present", "current":
		// Open end: ongoing stint.
	default:
		end, err := time.Parse("2006-01", m[4])
		if err != nil || end.Before(start) {
			return WorkStint{}, false
		}
		stint.EndDate = &end
	}
	return stint, true
}

func atoiYear(s string) int {
	year := 0
	for _, r := range s {
		year = year*10 + int(r-'0')
	}
	return year
}
