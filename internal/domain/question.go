package domain

// QuestionType is the closed set of question variants. Adding a type means
// extending the switches in the game package as well.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeMedia          QuestionType = "media"
	TypeClosest        QuestionType = "closest"
)

// Question is one question as stored in a pack, answer key included.
// Choices and Answer apply to multiple_choice/media, Answer alone to
// true_false ("true"/"false"), Target to closest.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Choices  []string     `json:"choices,omitempty"`
	Answer   string       `json:"answer,omitempty"`
	MediaURL string       `json:"mediaUrl,omitempty"`
	Target   float64      `json:"target,omitempty"`
}

// ClientQuestion is the client-safe projection of a Question: same shape
// minus the answer key and target.
type ClientQuestion struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Choices  []string     `json:"choices,omitempty"`
	MediaURL string       `json:"mediaUrl,omitempty"`
}

// Inning is one round of questions.
type Inning struct {
	Questions []Question `json:"questions"`
}

// Pack is the full question content for a match, nine innings in a standard
// pack. Content is assumed pre-validated by the import pipeline; the
// orchestrator still re-validates each question before showing it.
type Pack struct {
	ID      string   `json:"id"`
	Title   string   `json:"title,omitempty"`
	Innings []Inning `json:"innings"`
}

// QuestionAt returns the question at (inning, idx), or false when the
// position is out of range.
func (p Pack) QuestionAt(inning, idx int) (Question, bool) {
	if inning < 0 || inning >= len(p.Innings) {
		return Question{}, false
	}
	qs := p.Innings[inning].Questions
	if idx < 0 || idx >= len(qs) {
		return Question{}, false
	}
	return qs[idx], true
}
