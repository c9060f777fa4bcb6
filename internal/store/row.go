package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/farcloser/assay/internal/types"
)

const columns = `file_hash, file_name, file_path, snr_value, clipping_count, suspicion_score, was_segmented,
	ml_classification, ml_confidence, llm_verdict, llm_justification, llm_involved, arbitration_status, verdict,
	metadata_json, result_json, timestamp`

type row struct {
	hash              string
	fileName          string
	filePath          string
	snr               float64
	clipping          int
	suspicion         float64
	segmented         bool
	classification    string
	confidence        float64
	llmVerdict        sql.NullString
	llmJustification  sql.NullString
	llmInvolved       bool
	arbitrationStatus string
	verdict           string
	metadataJSON      string
	resultJSON        string
	timestamp         string
}

func newRow(result *types.AnalysisResult) (row, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return row{}, fmt.Errorf("encode result: %w", err)
	}

	metadataJSON, err := json.Marshal(result.Provenance)
	if err != nil {
		return row{}, fmt.Errorf("encode provenance: %w", err)
	}

	r := row{
		hash:              result.FileHash,
		fileName:          result.FileName,
		filePath:          result.FilePath,
		snr:               result.DSP.SNRDb,
		clipping:          result.DSP.ClippingEvents,
		suspicion:         result.SuspicionScore,
		segmented:         result.Segmented,
		classification:    string(result.Classification.Label),
		confidence:        result.Classification.Confidence,
		llmInvolved:       result.LLMInvolved(),
		arbitrationStatus: string(result.ArbitrationStatus),
		verdict:           string(result.Verdict),
		metadataJSON:      string(metadataJSON),
		resultJSON:        string(resultJSON),
		timestamp:         result.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if result.Arbitration != nil {
		r.llmVerdict = sql.NullString{String: string(result.Arbitration.Verdict), Valid: true}
		r.llmJustification = sql.NullString{String: result.Arbitration.Justification, Valid: true}
	}

	return r, nil
}

func (r row) args() []any {
	return []any{
		r.hash, r.fileName, r.filePath, r.snr, r.clipping, r.suspicion, r.segmented,
		r.classification, r.confidence, r.llmVerdict, r.llmJustification, r.llmInvolved, r.arbitrationStatus,
		r.verdict, r.metadataJSON, r.resultJSON, r.timestamp,
	}
}
