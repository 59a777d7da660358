package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trial-matching-mcp-server/internal/repository"
)

var _ EvaluationReader = (*repository.EvaluationRepository)(nil)

func (s *Server) handleInvalidatePatient(c *gin.Context) {
	if err := s.deps.Matching.InvalidatePatient(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handlePatientEvaluations lists a patient's persisted verdicts, newest first.
// With ?run_id= the eligible count of that run is included.
func (s *Server) handlePatientEvaluations(c *gin.Context) {
	ctx := c.Request.Context()
	patientID := c.Param("id")

	evals, err := s.deps.Evaluations.ListByPatient(ctx, patientID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{"patient_id": patientID, "evaluations": evals, "count": len(evals)}
	if runID := c.Query("run_id"); runID != "" {
		eligible, err := s.deps.Evaluations.CountEligible(ctx, runID, patientID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp["run_id"] = runID
		resp["eligible"] = eligible
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLatestEvaluation(c *gin.Context) {
	eval, err := s.deps.Evaluations.GetLatest(c.Request.Context(), c.Param("id"), c.Param("trial_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

func (s *Server) handleRunEvaluations(c *gin.Context) {
	evals, err := s.deps.Evaluations.ListByRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if evals == nil {
		evals = []repository.StoredEvaluation{}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("run_id"), "evaluations": evals, "count": len(evals)})
}
