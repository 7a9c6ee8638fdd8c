package model

type Entity struct {
	ID                int                    `json:"id"`
	PrettyName        string                 `json:"pretty_name"`
	CUI               string                 `json:"cui"`
	TypeIDs           []string               `json:"type_ids"`
	Types             []string               `json:"types"`
	SourceValue       string                 `json:"source_value"`
	DetectedName      string                 `json:"detected_name"`
	Acc               float64                `json:"acc"`
	ContextSimilarity float64                `json:"context_similarity"`
	Start             int                    `json:"start"`
	End               int                    `json:"end"`
	ICD10             []string               `json:"icd10"`
	Ontologies        []string               `json:"ontologies"`
	SNOMED            []string               `json:"snomed"`
	MetaAnns          map[string]interface{} `json:"meta_anns,omitempty"`
}

type NoteEntities struct {
	NoteID   string   `json:"note_id"`
	Text     string   `json:"text"`
	Entities []Entity `json:"entities"`
}
