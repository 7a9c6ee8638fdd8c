package model

type ReasoningStep struct {
	Step      string `json:"step" bson:"step"`
	Reasoning string `json:"reasoning" bson:"reasoning"`
}

type Query struct {
	Query     string          `json:"query" bson:"query"`
	PatientID *int64          `json:"patient_id,omitempty" bson:"patient_id,omitempty"`
	Steps     []ReasoningStep `json:"steps,omitempty" bson:"steps,omitempty"`
}

type Answer struct {
	Answer    string `json:"answer" bson:"answer"`
	Reasoning string `json:"reasoning" bson:"reasoning"`
}

type QueryAnswer struct {
	Query   Query   `json:"query" bson:"query"`
	Answer  *Answer `json:"answer,omitempty" bson:"answer,omitempty"`
	IsFirst bool    `json:"is_first" bson:"is_first"`
}

// Page is a conversation. QueryAnswers only grow, and element 0 is the one
// with IsFirst set.
type Page struct {
	ID           string        `json:"id" bson:"_id"`
	UserID       string        `json:"user_id" bson:"user_id"`
	QueryAnswers []QueryAnswer `json:"query_answers" bson:"query_answers"`
	Version      int64         `json:"version" bson:"version"`
	Ctime        int64         `json:"created_at" bson:"ctime"`
	Mtime        int64         `json:"updated_at" bson:"mtime"`
}

func (p *Page) Clone() *Page {
	if p == nil {
		return nil
	}
	out := *p
	out.QueryAnswers = make([]QueryAnswer, len(p.QueryAnswers))
	for i, qa := range p.QueryAnswers {
		item := qa
		if qa.Query.PatientID != nil {
			id := *qa.Query.PatientID
			item.Query.PatientID = &id
		}
		if qa.Query.Steps != nil {
			item.Query.Steps = append([]ReasoningStep(nil), qa.Query.Steps...)
		}
		if qa.Answer != nil {
			answer := *qa.Answer
			item.Answer = &answer
		}
		out.QueryAnswers[i] = item
	}
	return &out
}
