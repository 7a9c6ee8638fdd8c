package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/clinrag/internal/pkg/response"
	"github.com/xxxsen/clinrag/internal/service"
)

type PatientHandler struct {
	patients *service.PatientService
}

func NewPatientHandler(patients *service.PatientService) *PatientHandler {
	return &PatientHandler{patients: patients}
}

type batchEntitiesRequest struct {
	NoteIDs []string `json:"note_ids"`
}

func (h *PatientHandler) Summary(c *gin.Context) {
	summary, err := h.patients.Summary(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *PatientHandler) Get(c *gin.Context) {
	id, ok := parsePatientID(c)
	if !ok {
		return
	}
	patient, err := h.patients.Get(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, patient)
}

func (h *PatientHandler) Note(c *gin.Context) {
	id, ok := parsePatientID(c)
	if !ok {
		return
	}
	note, err := h.patients.Note(c.Request.Context(), id, c.Param("note_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, note)
}

func (h *PatientHandler) NoteRaw(c *gin.Context) {
	id, ok := parsePatientID(c)
	if !ok {
		return
	}
	note, err := h.patients.Note(c.Request.Context(), id, c.Param("note_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.String(http.StatusOK, note.Text)
}

func (h *PatientHandler) NoteEntities(c *gin.Context) {
	id, ok := parsePatientID(c)
	if !ok {
		return
	}
	entities, err := h.patients.ExtractNoteEntities(c.Request.Context(), id, c.Param("note_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, entities)
}

func (h *PatientHandler) BatchEntities(c *gin.Context) {
	id, ok := parsePatientID(c)
	if !ok {
		return
	}
	var req batchEntitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.NoteIDs) == 0 {
		badRequest(c, "note_ids required")
		return
	}
	results, err := h.patients.ExtractEntitiesBatch(c.Request.Context(), id, req.NoteIDs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"notes": results})
}
